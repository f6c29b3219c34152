// Package option is the functional option shape shared by the engine and the
// socket server. One option list is handed to both servers; an option acts on
// the server type it knows and ignores any other.
package option

type Option func(OptionWith)

type OptionWith interface{ With(...Option) }
