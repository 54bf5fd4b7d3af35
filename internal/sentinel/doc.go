// Package sentinel defines a string-backed error type so that package-level
// sentinel errors can be declared as constants instead of reassignable
// variables. Values compare by content, which keeps errors.Is working through
// wrapped chains.
package sentinel
