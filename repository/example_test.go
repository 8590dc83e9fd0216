package repository_test

import (
	"context"
	"fmt"

	"github.com/IvanBrykalov/resrepo/policy/lru"
	"github.com/IvanBrykalov/resrepo/repository"
	"github.com/IvanBrykalov/resrepo/weight"
)

type archive struct {
	name string
	size weight.Space
}

func (a *archive) Close() error {
	fmt.Println("disposed", a.name)
	return nil
}

func Example() {
	provider := repository.ProviderFunc[string, *archive](func(_ context.Context, key string) (repository.ProvideResult[*archive], error) {
		if key == "unknown" {
			return repository.NotFound[*archive]("no such plugin"), nil
		}
		return repository.Provided(&archive{name: key, size: 600 * weight.MiB}), nil
	})

	repo, err := repository.New(repository.Options[string, *archive, weight.Space]{
		Provider: provider,
		Weigher:  func(a *archive) weight.Space { return a.size },
		Policy:   lru.New[string, *archive, weight.Space](1*weight.GiB, 1*weight.GiB),
	})
	if err != nil {
		panic(err)
	}

	res, _ := repo.Get(context.Background(), "plugin-a")
	lock := res.Lock()
	fmt.Println("locked", lock.Resource().name, lock.Info().Weight)

	// Over the ceiling, but plugin-a is locked: its removal waits.
	res2, _ := repo.Get(context.Background(), "plugin-b")
	fmt.Println("total", repo.TotalWeight())

	lock.Release()
	res2.Lock().Release()
	fmt.Println("total", repo.TotalWeight())

	res3, _ := repo.Get(context.Background(), "unknown")
	fmt.Println(res3.Kind(), res3.Reason())

	_ = repo.Close()
	// Output:
	// locked plugin-a 600 MiB
	// total 1.2 GiB
	// disposed plugin-a
	// total 600 MiB
	// not_found no such plugin
	// disposed plugin-b
}
