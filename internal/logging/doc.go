// Package logging provides structured logging for designgov.
//
// # Overview
//
// The package wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - context field injection (trace_id, session.id, agent.id, branch.id)
//   - level-aware sampling (errors are never sampled)
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSession(ctx, st.ID, st.AgentID, st.BranchID)
//	logger.Info(ctx, "phase transition", zap.String("to", "execute"))
//
// Every governance run carries its session identity in the context, so each
// line emitted while driving a session can be correlated with the audit log.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Warn(ctx, "action denied", zap.String("tool", "delete_element"))
//	tl.AssertLogged(t, zapcore.WarnLevel, "action denied")
//	tl.AssertField(t, "action denied", "tool", "delete_element")
package logging
