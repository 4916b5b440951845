package httpapi

// InputError is a rejected /register body. State is left untouched.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }
