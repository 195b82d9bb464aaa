// Defines the validation interface for requests.

package dto

// Validatable is implemented by request types that can validate their fields.
// The Wrap functions in the server package use it as a type constraint.
type Validatable interface {
	Validate() error
}
