// Package errors provides coded, categorized errors for start-up failures of
// the sqmean commands.
//
// Runtime failures of the service never travel as returned errors; they are
// logged and counted. What remains are the failures a human has to act on:
// a port already in use, an unreadable config file, an unknown store name.
// Each has a stable code that maps to a message and a longer explanation.
//
// # Error Categories
//
//   - transport: binding, dialing, retry budget
//   - persistence: dump directory, SQL database, S3 bucket, final flush
//   - config: sqmean.json and flag values
//   - cli: command usage and auxiliary servers
//
// # Usage
//
//	err := errors.New("E001").
//	    WithDetail("0.0.0.0:64000 is already bound").
//	    WithSuggestion("Pick another port with --port").
//	    Wrap(listenErr)
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// Output:
//	// ERROR E001: Cannot listen on address
//	//
//	//   0.0.0.0:64000 is already bound
//	//
//	//   Hint: Pick another port with --port
package errors
