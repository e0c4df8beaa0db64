package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

const (
	payloadEnv       = "TRIGGER_PAYLOAD"
	traceparentEnv   = "TRACEPARENT"
	tracestateEnv    = "TRACESTATE"
	resourceAttrsEnv = "OTEL_RESOURCE_ATTRIBUTES"

	// executionEnvAttr marks spans produced inside the child so they can be
	// told apart from the host's own.
	executionEnvAttr = "trigger.execution.environment=host"
)

// buildEnv assembles the child environment: the inherited process
// environment, the caller's extras (empty values filtered), the JSON payload
// export, and the trace-context carrier so an instrumented child continues
// the host's trace.
func buildEnv(ctx context.Context, opts Options) ([]string, error) {
	env := os.Environ()

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := opts.Env[k]; v != "" {
			env = append(env, k+"="+v)
		}
	}

	if opts.Payload != nil {
		b, err := json.Marshal(opts.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		env = append(env, payloadEnv+"="+string(b))
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	if tp := carrier.Get("traceparent"); tp != "" {
		env = append(env, traceparentEnv+"="+tp)
	}
	if ts := carrier.Get("tracestate"); ts != "" {
		env = append(env, tracestateEnv+"="+ts)
	}

	env = append(env, resourceAttrsEnv+"="+resourceAttributes(opts.TaskAttributes))
	return env, nil
}

func resourceAttributes(taskAttrs map[string]string) string {
	attrs := []string{executionEnvAttr}

	keys := make([]string, 0, len(taskAttrs))
	for k := range taskAttrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k+"="+taskAttrs[k])
	}
	return strings.Join(attrs, ",")
}
