package builtin

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/tool"
)

// ClockName is the registered name of the clock tool.
const ClockName = "clock"

type clockArgs struct {
	Zone string `json:"zone,omitempty" description:"IANA time zone such as Europe/Berlin; defaults to UTC"`
}

// ClockResult is returned by the clock tool.
type ClockResult struct {
	Zone    string `json:"zone"`
	Time    string `json:"time"`
	Weekday string `json:"weekday"`
}

// Clock returns the clock tool reading the time from now.
func Clock(now func() time.Time) *tool.FunctionTool {
	return tool.NewFunctionToolFromStruct(ClockName, "Return the current date and time in a time zone.", clockArgs{}, clockExecutor(now))
}

func clockExecutor(now func() time.Time) tool.Executor {
	return func(inv *tool.Invocation, args map[string]any) (any, error) {
		zone, _ := args["zone"].(string)
		if zone == "" {
			if v, ok := inv.Config("default_zone"); ok {
				zone, _ = v.(string)
			}
		}
		if zone == "" {
			zone = "UTC"
		}
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("unknown time zone %q", zone)
		}
		t := now().In(loc)
		return ClockResult{Zone: loc.String(), Time: t.Format(time.RFC3339), Weekday: t.Weekday().String()}, nil
	}
}
