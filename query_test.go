package trealla_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/proliga/prolog"
)

func TestQuery(t *testing.T) {
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("consult", func(t *testing.T) {
		if err := pl.ConsultText(context.Background(), "user", `hello(world). hello('Welt'). hello('世界').`); err != nil {
			t.Error(err)
		}
	})

	tests := []struct {
		name string
		want []trealla.Answer
		err  error
	}{
		{
			name: "true/0",
			want: []trealla.Answer{
				{
					Query:    `true.`,
					Solution: trealla.Substitution{},
				},
			},
		},
		{
			name: "false/0",
			want: []trealla.Answer{
				{
					Query: `false.`,
				},
			},
			err: trealla.ErrFailure,
		},
		{
			name: "write to output",
			want: []trealla.Answer{
				{
					Query:    `write(hello), nl.`,
					Solution: trealla.Substitution{},
					Output:   "hello\n",
				},
			},
		},
		{
			name: "consulted",
			want: []trealla.Answer{
				{
					Query:    `hello(X).`,
					Solution: trealla.Substitution{"X": trealla.Atom("world")},
				},
				{
					Query:    `hello(X).`,
					Solution: trealla.Substitution{"X": trealla.Atom("Welt")},
				},
				{
					Query:    `hello(X).`,
					Solution: trealla.Substitution{"X": trealla.Atom("世界")},
				},
			},
		},
		{
			name: "assertz/1",
			want: []trealla.Answer{
				{
					Query:    `assertz(greeting(konnichiwa)).`,
					Solution: trealla.Substitution{},
				},
			},
		},
		{
			name: "assertz/1 (did it persist?)",
			want: []trealla.Answer{
				{
					Query:    `greeting(X).`,
					Solution: trealla.Substitution{"X": trealla.Atom("konnichiwa")},
				},
			},
		},
		{
			name: "member/2",
			want: []trealla.Answer{
				{
					Query:    `member(X, [1, foo(bar), 4.2, c]).`,
					Solution: trealla.Substitution{"X": int64(1)},
				},
				{
					Query: `member(X, [1, foo(bar), 4.2, c]).`,
					Solution: trealla.Substitution{"X": trealla.Compound{
						Functor: "foo", Args: []trealla.Term{trealla.Atom("bar")},
					}},
				},
				{
					Query:    `member(X, [1, foo(bar), 4.2, c]).`,
					Solution: trealla.Substitution{"X": 4.2},
				},
				{
					Query:    `member(X, [1, foo(bar), 4.2, c]).`,
					Solution: trealla.Substitution{"X": trealla.Atom("c")},
				},
			},
		},
		{
			// spec.md §8 scenario 1.
			name: "append/3",
			want: []trealla.Answer{
				{
					Query: `append([1,2], [3,4], X).`,
					Solution: trealla.Substitution{
						"X": []trealla.Term{int64(1), int64(2), int64(3), int64(4)},
					},
				},
			},
		},
		{
			// spec.md §8 scenario 3: fact/2, recursive but not tail-recursive.
			name: "fact/2",
			want: []trealla.Answer{
				{
					Query:    `fact(10, F).`,
					Solution: trealla.Substitution{"F": int64(3628800)},
				},
			},
		},
		{
			// spec.md §8 scenario 4.
			name: "catch/throw",
			want: []trealla.Answer{
				{
					Query:    `catch(throw(myerr), E, (E=myerr)).`,
					Solution: trealla.Substitution{"E": trealla.Atom("myerr")},
				},
			},
		},
		{
			// spec.md §8 scenario 5.
			name: "findall/3",
			want: []trealla.Answer{
				{
					Query: `findall(X, member(X,[1,2,3]), L).`,
					Solution: trealla.Substitution{
						"L": []trealla.Term{int64(1), int64(2), int64(3)},
					},
				},
			},
		},
		{
			name: "empty list",
			want: []trealla.Answer{
				{
					Query:    `X = [].`,
					Solution: trealla.Substitution{"X": trealla.Atom("[]")},
				},
			},
		},
	}

	if err := pl.ConsultText(context.Background(), "user",
		`fact(0, 1). fact(N, F) :- N>0, N1 is N-1, fact(N1, F1), F is N*F1.`); err != nil {
		t.Fatal(err)
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			q := pl.Query(ctx, tc.want[0].Query)
			var ans []trealla.Answer
			for q.Next(ctx) {
				ans = append(ans, q.Current())
			}
			err := q.Err()
			if tc.err == nil && err != nil {
				t.Fatal(err)
			} else if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("unexpected error: %#v (%v)", err, err)
			}
			if tc.err == nil && !reflect.DeepEqual(ans, tc.want) {
				t.Errorf("bad answer.\nwant: %#v\ngot:  %#v\n", tc.want, ans)
			}
		})
	}

	// spec.md §8 scenario 1, second half: asking for more solutions fails
	// with no error (end of iteration, not a failed query).
	t.Run("append/3 no more solutions", func(t *testing.T) {
		ctx := context.Background()
		q := pl.Query(ctx, `append([1,2], [3,4], [1,2,3,4]).`)
		if !q.Next(ctx) {
			t.Fatal("expected a solution")
		}
		if q.Next(ctx) {
			t.Error("expected no further solutions")
		}
		if err := q.Err(); err != nil {
			t.Error("unexpected error on exhaustion:", err)
		}
	})

	// spec.md §8 scenario 2.
	t.Run("member/2 backtracking", func(t *testing.T) {
		ctx := context.Background()
		q := pl.Query(ctx, `member(X, [a,b,c]).`)
		var got []trealla.Term
		for q.Next(ctx) {
			got = append(got, q.Current().Solution["X"])
		}
		want := []trealla.Term{trealla.Atom("a"), trealla.Atom("b"), trealla.Atom("c")}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("want %v, got %v", want, got)
		}
		if q.Next(ctx) {
			t.Error("expected false on further backtracking")
		}
	})
}

func TestSetof(t *testing.T) {
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := pl.ConsultText(ctx, "user", `
parent(alice, bob).
parent(alice, carol).
parent(dave, ella).
`); err != nil {
		t.Fatal(err)
	}

	// spec.md §8 scenario 6.
	ans, err := pl.QueryOnce(ctx, `setof(X, Y^parent(X,Y), L).`)
	if err != nil {
		t.Fatal(err)
	}
	want := []trealla.Term{trealla.Atom("alice"), trealla.Atom("dave")}
	got := ans.Solution["L"]
	if !reflect.DeepEqual(want, got) {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestTCOBounded(t *testing.T) {
	// A tail-recursive counter run to N = 200000 must succeed (spec §4.4,
	// §4.6, §8's TCO invariant); this checks that the query completes, not
	// the frame depth itself. A non-tail-recursive accumulation
	// like fact/2 is exercised separately in TestQuery's "fact/2" case,
	// confirming TCO does NOT spuriously fire there.
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := pl.ConsultText(ctx, "user", `
count(N, N) :- !.
count(I, N) :- I < N, I1 is I+1, count(I1, N).
`); err != nil {
		t.Fatal(err)
	}
	ans, err := pl.QueryOnce(ctx, `count(0, 200000).`)
	if err != nil {
		t.Fatal(err)
	}
	_ = ans
}

func TestThrow(t *testing.T) {
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	q := pl.Query(ctx, `write(hello), throw(ball).`)
	if q.Next(ctx) {
		t.Error("unexpected result", q.Current())
	}
	err = q.Err()

	var ex trealla.ErrThrow
	if !errors.As(err, &ex) {
		t.Fatal("unexpected error:", err, "want ErrThrow")
	}

	if ex.Ball != trealla.Atom("ball") {
		t.Error(`unexpected error value. want: "ball" got:`, ex.Ball)
	}
}

func TestBind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}

	want := int64(123)
	atom := trealla.Atom("abc")
	validate := func(t *testing.T, ans trealla.Answer) {
		t.Helper()
		if x := ans.Solution["X"]; x != want {
			t.Error("unexpected value. want:", want, "got:", x)
		}
		if y := ans.Solution["Y"]; y != want {
			t.Error("unexpected value. want:", want, "got:", y)
		}
		if z := ans.Solution["Z"]; z != atom {
			t.Error("unexpected value. want:", atom, "got:", z)
		}
	}

	t.Run("WithBind", func(t *testing.T) {
		ans, err := pl.QueryOnce(ctx, "Y = X.", trealla.WithBind("X", 123), trealla.WithBind("Z", trealla.Atom("abc")))
		if err != nil {
			t.Fatal(err)
		}
		validate(t, ans)
	})

	t.Run("WithBinding", func(t *testing.T) {
		ans, err := pl.QueryOnce(ctx, "Y = X.", trealla.WithBinding(trealla.Substitution{"X": want, "Z": atom}))
		if err != nil {
			t.Fatal(err)
		}
		validate(t, ans)
	})

	t.Run("overwriting", func(t *testing.T) {
		ans, err := pl.QueryOnce(ctx, "Y = X.", trealla.WithBinding(trealla.Substitution{"X": -1, "Z": atom}), trealla.WithBind("X", want))
		if err != nil {
			t.Fatal(err)
		}
		validate(t, ans)
	})

	t.Run("lists", func(t *testing.T) {
		ans, err := pl.QueryOnce(ctx, "Y = X.", trealla.WithBind("X", []trealla.Term{int64(555)}))
		if err != nil {
			t.Fatal(err)
		}
		want := []trealla.Term{int64(555)}
		if x := ans.Solution["X"]; !reflect.DeepEqual(x, want) {
			t.Error("unexpected value. want:", want, "got:", x)
		}
	})
}

// TestConcurrencyClones exercises the supported concurrency model: each
// goroutine runs queries against its own Clone() (fresh frames/trail/
// choices/heap, shared clause store and atom table), never sharing one
// *prolog's in-flight query state across goroutines, since one instance
// runs every live query on its single in-process Machine.
func TestConcurrencyClones(t *testing.T) {
	pl, err := trealla.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.ConsultText(context.Background(), "user", "test(123)."); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clone, err := pl.Clone()
			if err != nil {
				t.Error(err)
				return
			}
			defer clone.Close()
			ctx := context.Background()
			ans, err := clone.QueryOnce(ctx, "test(X).")
			if err != nil {
				t.Error(err)
				return
			}
			if ans.Solution["X"] != int64(123) {
				t.Errorf("bad answer: %v", ans.Solution)
			}
		}()
	}
	wg.Wait()
}
