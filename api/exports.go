package api

import "reflect"

// Exports returns this package's symbols for the embedded Go
// interpreter. Dial builds a Client for the interface mounted at baseURL.
func Exports(baseURL string) map[string]reflect.Value {
	dial := func(def Definition) (*Client, error) {
		return NewClient(def, baseURL)
	}

	return map[string]reflect.Value{
		// function, constant and variable definitions
		"Delete":    reflect.ValueOf(Delete),
		"Dial":      reflect.ValueOf(dial),
		"Get":       reflect.ValueOf(Get),
		"NewClient": reflect.ValueOf(NewClient),
		"Patch":     reflect.ValueOf(Patch),
		"Post":      reflect.ValueOf(Post),
		"Put":       reflect.ValueOf(Put),

		"ErrBadCall":      reflect.ValueOf(&ErrBadCall).Elem(),
		"ErrUnknownRoute": reflect.ValueOf(&ErrUnknownRoute).Elem(),

		// type definitions
		"Client":     reflect.ValueOf((*Client)(nil)),
		"Definition": reflect.ValueOf((*Definition)(nil)),
		"Error":      reflect.ValueOf((*Error)(nil)),
		"Route":      reflect.ValueOf((*Route)(nil)),
	}
}
