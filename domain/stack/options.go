package stack

type options struct {
	poisonCheck bool
}

// Option configures a Stack.
type Option func(*options)

// WithPoisonCheck makes Pop verify that the node it claimed was not
// freed or recycled between loading it and winning the CAS. A violation
// panics. Intended for stress runs.
func WithPoisonCheck() Option {
	return func(o *options) {
		o.poisonCheck = true
	}
}
