package repokit

// Binder is a tiny factory that binds a domain repo to a specific Queryer.
// Services hold a Binder instead of a repo so the same SQL can run against
// the pool or inside a transaction, and tests can bind fakes
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc lets you create a Binder from a function
type BindFunc[T any] func(Queryer) T

// Bind calls the underlying function
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }
