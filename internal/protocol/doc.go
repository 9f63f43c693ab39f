// Package protocol defines the messages exchanged with the buildplan daemon.
//
// Each connection carries one request and one response. Both are a single
// line of JSON holding an [Envelope]: a command name and a command-specific
// payload. Responses use [CmdOK] with the command's result or [CmdError] with
// an [ErrorResult].
//
// Example usage:
//
//	env, err := protocol.Send(ctx, paths.Socket(), protocol.CmdCheck, &protocol.CheckRequest{
//	    Plan: plan.Airflow(),
//	})
//	if err != nil {
//	    return err
//	}
//
//	result, err := protocol.Result[protocol.CheckResult](env)
package protocol
