package trealla

import (
	"context"
	"sync"
	"testing"
)

func TestDB(t *testing.T) {
	db, err := NewDB()
	if err != nil {
		t.Fatal(err)
	}

	if err := db.WriteTx(func(pl Prolog) error {
		return pl.ConsultText(context.Background(), "user", "greet(world).")
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.ReadTx(func(pl Prolog) error {
				ans, err := pl.QueryOnce(context.Background(), "greet(X)")
				if err != nil {
					return err
				}
				if ans.Solution["X"] != Atom("world") {
					t.Errorf("unexpected binding: %#v", ans.Solution["X"])
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := db.WriteTx(func(pl Prolog) error {
		return pl.ConsultText(context.Background(), "user", "greet(moon).")
	}); err != nil {
		t.Fatal(err)
	}

	err = db.ReadTx(func(pl Prolog) error {
		ans, err := pl.QueryOnce(context.Background(), "greet(moon)")
		if err != nil {
			return err
		}
		_ = ans
		return nil
	})
	if err != nil {
		t.Fatalf("write through canon should be visible to replicas: %v", err)
	}
}

func BenchmarkDB(b *testing.B) {
	db, err := NewDB()
	if err != nil {
		b.Fatal(err)
	}
	if err := db.WriteTx(func(pl Prolog) error {
		return pl.ConsultText(context.Background(), "user", "greet(world).")
	}); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				db.ReadTx(func(pl Prolog) error {
					_, err := pl.QueryOnce(context.Background(), "greet(X)")
					return err
				})
			}()
		}
		wg.Wait()
	}
}
