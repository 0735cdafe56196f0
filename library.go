package trealla

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// preludeSource is a small Prolog-text standard library, loaded into the
// "user" module at New time the way the teacher loads its library/
// directory. List/string utility predicates are spec.md §1's explicit
// external collaborators — the core engine never implements them in Go;
// they are ordinary user-level clauses built on the core's own control
// constructs (,/2, ;/2, ->/2, !/0, is/2) exactly like any consulted
// program would define them.
const preludeSource = `
append([], L, L).
append([H|T], L, [H|R]) :- append(T, L, R).

append(Ls, R) :- foldl_append_(Ls, [], R).
foldl_append_([], Acc, Acc).
foldl_append_([L|Ls], Acc, R) :- append(Acc, L, Acc1), foldl_append_(Ls, Acc1, R).

member(X, [X|_]).
member(X, [_|T]) :- member(X, T).

memberchk(X, L) :- member(X, L), !.

length(L, N) :- length_count_(L, 0, N).
length_count_([], N, N).
length_count_([_|T], N0, N) :- N1 is N0+1, length_count_(T, N1, N).

reverse(L, R) :- reverse_(L, [], R).
reverse_([], Acc, Acc).
reverse_([H|T], Acc, R) :- reverse_(T, [H|Acc], R).

last([X], X) :- !.
last([_|T], X) :- last(T, X).

nth0(I, L, E) :- integer(I), !, I >= 0, nth0_det_(I, L, E).
nth0(I, L, E) :- var(I), nth0_gen_(L, 0, I, E).
nth0_det_(0, [X|_], X) :- !.
nth0_det_(N, [_|T], X) :- N1 is N-1, nth0_det_(N1, T, X).
nth0_gen_([X|_], I, I, X).
nth0_gen_([_|T], I0, I, X) :- I1 is I0+1, nth0_gen_(T, I1, I, X).

nth1(I, L, E) :- integer(I), !, I1 is I-1, I1 >= 0, nth0_det_(I1, L, E).
nth1(I, L, E) :- var(I), nth0_gen_(L, 0, I0, E), I is I0+1.

between(Lo, Hi, Lo) :- Lo =< Hi.
between(Lo, Hi, X) :- Lo < Hi, Lo1 is Lo+1, between(Lo1, Hi, X).

numlist(Lo, Hi, []) :- Lo > Hi, !.
numlist(Lo, Hi, [Lo|T]) :- Lo =< Hi, Lo1 is Lo+1, numlist(Lo1, Hi, T).

sum_list(L, S) :- sum_list_(L, 0, S).
sum_list_([], S, S).
sum_list_([H|T], S0, S) :- S1 is S0+H, sum_list_(T, S1, S).
sumlist(L, S) :- sum_list(L, S).

max_list([X], X) :- !.
max_list([H|T], M) :- max_list(T, M0), (H >= M0 -> M = H ; M = M0).

min_list([X], X) :- !.
min_list([H|T], M) :- min_list(T, M0), (H =< M0 -> M = H ; M = M0).

maplist(_, []).
maplist(G, [X|Xs]) :- call(G, X), maplist(G, Xs).
maplist(_, [], []).
maplist(G, [X|Xs], [Y|Ys]) :- call(G, X, Y), maplist(G, Xs, Ys).
maplist(_, [], [], []).
maplist(G, [X|Xs], [Y|Ys], [Z|Zs]) :- call(G, X, Y, Z), maplist(G, Xs, Ys, Zs).

foldl(_, [], Acc, Acc).
foldl(G, [X|Xs], Acc0, Acc) :- call(G, X, Acc0, Acc1), foldl(G, Xs, Acc1, Acc).

include(_, [], []).
include(G, [X|Xs], R) :- (call(G, X) -> R = [X|R1] ; R = R1), include(G, Xs, R1).

exclude(_, [], []).
exclude(G, [X|Xs], R) :- (call(G, X) -> R = R1 ; R = [X|R1]), exclude(G, Xs, R1).

select(X, [X|T], T).
select(X, [H|T], [H|R]) :- select(X, T, R).

delete([], _, []).
delete([X|T], X, R) :- !, delete(T, X, R).
delete([H|T], X, [H|R]) :- delete(T, X, R).

permutation([], []).
permutation(L, [H|T]) :- select(H, L, R), permutation(R, T).

concat_atom([], '').
concat_atom([A], A) :- !.
concat_atom([A|As], R) :- concat_atom(As, R1), atom_concat(A, R1, R).

not(G) :- \+ call(G).
`

var builtins = []struct {
	name  string
	arity int
	proc  Predicate
}{
	{"$coro_next", 2, sys_coro_next_2},
	{"$coro_stop", 1, sys_coro_stop_1},
	{"crypto_data_hash", 3, crypto_data_hash_3},
	{"http_consult", 1, http_consult_1},
	{"http_fetch", 3, http_fetch_3},
	{"write", 1, write_1},
	{"print", 1, write_1},
	{"write", 2, write_2},
	{"nl", 0, nl_0},
	{"nl", 1, nl_1},
}

// outputSink is implemented by *prolog and *lockedProlog; write/1 et al.
// use it rather than taking a concrete type, since Predicate only ever
// receives the Prolog interface.
type outputSink interface {
	writeOutput(s string)
}

// write_1 implements write/1 by marshaling the term to its canonical
// Prolog text form and appending it to the running query's captured
// output (spec §1 treats formatting as an external collaborator reached
// through a narrow interface; this is that interface's minimal shape —
// full writeq/print_message-style formatting stays out of scope).
func write_1(pl Prolog, _ Subquery, goal Term) Term {
	cmp, ok := goal.(Compound)
	if !ok || len(cmp.Args) != 1 {
		return systemError(piTerm("write", 1))
	}
	emit(pl, termText(cmp.Args[0]))
	return Atom("true")
}

// write_2 implements write/2 (Stream, Term); the stream argument is
// accepted for source compatibility but not dispatched to separate
// stdout/stderr sinks, matching Answer's single Output field.
func write_2(pl Prolog, _ Subquery, goal Term) Term {
	cmp, ok := goal.(Compound)
	if !ok || len(cmp.Args) != 2 {
		return systemError(piTerm("write", 2))
	}
	emit(pl, termText(cmp.Args[1]))
	return Atom("true")
}

func nl_0(pl Prolog, _ Subquery, _ Term) Term {
	emit(pl, "\n")
	return Atom("true")
}

func nl_1(pl Prolog, _ Subquery, _ Term) Term {
	emit(pl, "\n")
	return Atom("true")
}

func emit(pl Prolog, s string) {
	if sink, ok := pl.(outputSink); ok {
		sink.writeOutput(s)
	}
}

// termText renders t the way write/1 does: atoms and strings unquoted,
// everything else via Marshal's canonical form.
func termText(t Term) string {
	switch x := t.(type) {
	case Atom:
		return string(x)
	case string:
		return x
	default:
		s, err := marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return s
	}
}

func (pl *prolog) loadBuiltins() error {
	ctx := context.Background()
	for _, predicate := range builtins {
		if err := pl.register(ctx, predicate.name, predicate.arity, predicate.proc); err != nil {
			return err
		}
	}
	return nil
}

// TODO: needs to support forms, headers, etc.
func http_fetch_3(_ Prolog, _ Subquery, goal Term) Term {
	cmp, _ := goal.(Compound)
	result := cmp.Args[1]
	opts := cmp.Args[2]

	str, ok := cmp.Args[0].(string)
	if !ok {
		return typeError("chars", cmp.Args[0], piTerm("http_fetch", 3))
	}
	href, err := url.Parse(str)
	if err != nil {
		return domainError("url", cmp.Args[0], piTerm("http_fetch", 3))
	}

	method := findOption[Atom](opts, "method", "get")
	as := findOption[Atom](opts, "as", "string")
	bodystr := findOption(opts, "body", "")
	var body io.Reader
	if bodystr != "" {
		body = strings.NewReader(bodystr)
	}

	req, err := http.NewRequest(strings.ToUpper(string(method)), href.String(), body)
	if err != nil {
		return domainError("url", cmp.Args[0], err.Error())
	}
	// req.Header.Add("Accept", "application/x-prolog")
	req.Header.Set("User-Agent", "trealla-prolog/go")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return systemError(err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK: // ok
	case http.StatusNoContent:
		return goal
	case http.StatusNotFound, http.StatusGone:
		return existenceError("source_sink", str, piTerm("http_fetch", 3))
	case http.StatusForbidden, http.StatusUnauthorized:
		return permissionError("open,source_sink", str, piTerm("http_fetch", 3))
	default:
		return systemError(fmt.Errorf("http_consult/1: unexpected status code: %d", resp.StatusCode))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return resourceError(Atom(err.Error()), piTerm("http_fetch", 3))
	}

	switch as {
	case "json":
		js := Variable{Name: "_JS"}
		return Atom("call").Of(Atom(",").Of(Atom("=").Of(result, js), Atom("json_chars").Of(js, buf.String())))
	}

	return Atom(cmp.Functor).Of(str, buf.String(), Variable{Name: "_"})
}

func http_consult_1(_ Prolog, _ Subquery, goal Term) Term {
	cmp, ok := goal.(Compound)
	if !ok {
		return typeError("compound", goal, piTerm("http_consult", 1))
	}
	if len(cmp.Args) != 1 {
		return systemError(piTerm("http_consult", 1))
	}
	module := Atom("user")
	var addr string
	switch x := cmp.Args[0].(type) {
	case string:
		addr = x
	case Compound:
		// http_consult(module_name:"http://...")
		if x.Functor != ":" || len(x.Args) != 2 {
			return typeError("chars", cmp.Args[0], piTerm("http_consult", 1))
		}
		var ok bool
		module, ok = x.Args[0].(Atom)
		if !ok {
			return typeError("atom", x.Args[0], piTerm("http_consult", 1))
		}
		addr, ok = x.Args[1].(string)
		if !ok {
			return typeError("chars", x.Args[1], piTerm("http_consult", 1))
		}
	}
	href, err := url.Parse(addr)
	if err != nil {
		return domainError("url", cmp.Args[0], piTerm("http_consult", 1))
	}

	// TODO: grab context somehow
	req, err := http.NewRequest(http.MethodGet, href.String(), nil)
	if err != nil {
		return domainError("url", cmp.Args[0], err.Error())
	}
	req.Header.Add("Accept", "application/x-prolog")
	req.Header.Set("User-Agent", "trealla-prolog/go")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return systemError(err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK: // ok
	case http.StatusNoContent:
		return goal
	case http.StatusNotFound, http.StatusGone:
		return existenceError("source_sink", addr, piTerm("http_consult", 1))
	case http.StatusForbidden, http.StatusUnauthorized:
		return permissionError("open,source_sink", addr, piTerm("http_consult", 1))
	default:
		return systemError(fmt.Errorf("http_consult/1: unexpected status code: %d", resp.StatusCode))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return resourceError(Atom(err.Error()), piTerm("http_consult", 1))
	}

	// call(load_text(Text, module(URL))).
	return Atom("call").Of(Atom("load_text").Of(buf.String(), []Term{Atom("module").Of(module)}))
}

func crypto_data_hash_3(pl Prolog, _ Subquery, goal Term) Term {
	cmp, ok := goal.(Compound)
	if !ok {
		return typeError("compound", goal, piTerm("crypto_data_hash", 3))
	}
	if len(cmp.Args) != 3 {
		return systemError(piTerm("crypto_data_hash", 3))
	}
	data := cmp.Args[0]
	hash := cmp.Args[1]
	opts := cmp.Args[2]
	str, ok := data.(string)
	if !ok {
		return typeError("chars", data, piTerm("crypto_data_hash", 3))
	}
	switch hash.(type) {
	case Variable, string: // ok
	default:
		return typeError("chars", hash, piTerm("crypto_data_hash", 3))
	}
	if !isList(opts) {
		return typeError("list", opts, piTerm("crypto_data_hash", 3))
	}
	algo := findOption[Atom](opts, "algorithm", "sha256")
	var digest []byte
	switch algo {
	case Atom("sha256"):
		sum := sha256.Sum256([]byte(str))
		digest = sum[:]
	case Atom("sha512"):
		sum := sha512.Sum512([]byte(str))
		digest = sum[:]
	case Atom("sha1"):
		sum := sha1.Sum([]byte(str))
		digest = sum[:]
	default:
		return domainError("algorithm", algo, piTerm("crypto_data_hash", 3))
	}
	return Atom("crypto_data_hash").Of(data, hex.EncodeToString(digest), opts)
}

func typeError(want Atom, got Term, ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("type_error").Of(want, got), ctx))
}

func domainError(domain Atom, got Term, ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("domain_error").Of(domain, got), ctx))
}

func existenceError(what Atom, got Term, ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("existence_error").Of(what, got), ctx))
}

func permissionError(what Atom, got Term, ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("permission_error").Of(what, got), ctx))
}

func resourceError(what Atom, ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("resource_error").Of(what), ctx))
}

func systemError(ctx Term) Compound {
	return throwTerm(Atom("error").Of(Atom("system_error"), ctx))
}

func throwTerm(ball Term) Compound {
	return Compound{Functor: "throw", Args: []Term{ball}}
}

func findOption[T Term](opts Term, functor Atom, fallback T) T {
	if empty, ok := opts.(Atom); ok && empty == "[]" {
		return fallback
	}
	list, ok := opts.([]Term)
	if !ok {
		var empty T
		return empty
	}
	for i, x := range list {
		switch x := x.(type) {
		case Compound:
			if x.Functor != functor || len(x.Args) != 1 {
				continue
			}
			switch arg := x.Args[0].(type) {
			case T:
				return arg
			case Variable:
				list[i] = functor.Of(fallback)
				return fallback
			}
		}
	}
	return fallback
}

func isList(x Term) bool {
	switch x := x.(type) {
	case []Term:
		return true
	case Atom:
		return x == "[]"
	}
	return false
}
