// Package command dispatches workspace/executeCommand to the single
// handler that owns each command id.
//
// Commands are owned either by an extension, through a registration of
// workspace/executeCommand listing the ids it executes, or by the host
// through a local Go handler. The dispatcher installs a validator on the
// registration registry so that a second claim on an id is refused when
// it is registered, never resolved at execution time. Commands run at
// most once per request; failures are not retried.
package command
