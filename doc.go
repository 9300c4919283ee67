/*
Package mcpdiag probes a separately-running MCP-style server over its stdio
transport and reports what it observed.

The harness launches the server as a child process, exchanges newline-delimited
JSON-RPC messages over the process's standard streams, and classifies each
scripted exchange into an Outcome: a decoded response, a timeout, a decode
failure, a refused write, or a process exit. It is a one-shot diagnostic, not a
client library: failures become report data, and the report is always produced.

A typical run:

	prober := mcpdiag.NewProber(mcpdiag.Config{
		Command: "python",
		Args:    []string{"-m", "main", "--transport", "stdio"},
		Dir:     "/srv/my-server",
	})

	report, err := prober.Run(ctx, mcpdiag.HandshakeFirst())
	if err != nil {
		// Only a launch failure lands here.
		log.Fatal(err)
	}
	for _, o := range report.Outcomes {
		fmt.Println(o.Step, o.Method, o.Kind)
	}

Two scripts are built in. HandshakeFirst sends initialize and then tools/list,
the sequence a well-behaved client uses. HandshakeOmitted sends tools/list with
no prior handshake to see how the server treats out-of-order requests; an
RPC-level error in the reply is recorded as a successful exchange, since the
server answering at all is the interesting datum.

The cmd/mcpdiag command wraps the package in a CLI, and custom request
sequences can be scripted in txtar files via its script subcommand.
*/
package mcpdiag
