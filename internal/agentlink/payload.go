package agentlink

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Event payloads are loosely typed maps whose field names drifted across
// agent server versions. Each accessor tries a documented chain of keys and
// falls back to a literal placeholder, so payload-shape changes stay
// contained in this file.

const (
	UnknownTool = "Unknown"
	UnknownFile = "Unknown file"
)

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func mapField(data map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// Text returns the first present string among keys, else fallback.
func Text(data map[string]any, fallback string, keys ...string) string {
	if s := stringField(data, keys...); s != "" {
		return s
	}
	return fallback
}

// SessionID extracts the server-issued session identifier, if present.
func SessionID(data map[string]any) string {
	return stringField(data, "session_id")
}

// StepNumber renders the step counter from either numeric or string fields.
func StepNumber(data map[string]any) string {
	for _, key := range []string{"step", "step_number"} {
		switch v := data[key].(type) {
		case float64:
			return strconv.Itoa(int(v))
		case int:
			return strconv.Itoa(v)
		case string:
			if v != "" {
				return v
			}
		}
	}
	return "?"
}

// ToolCall resolves a tool invocation's name and a short description of its
// arguments.
func ToolCall(data map[string]any) (name, desc string) {
	name = stringField(data, "function_name", "tool")
	if name == "" {
		name = UnknownTool
	}
	desc = Text(data, "Executing tool...", "description")
	for _, key := range []string{"function_args", "parameters", "args"} {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		switch args := v.(type) {
		case map[string]any:
			if len(args) == 0 {
				continue
			}
			keys := make([]string, 0, len(args))
			for k := range args {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, args[k]))
			}
			return name, "Arguments: " + strings.Join(pairs, ", ")
		case string:
			if args != "" {
				return name, args
			}
		default:
			return name, fmt.Sprintf("%v", v)
		}
	}
	return name, desc
}

// ToolResult resolves a tool result payload; long results are truncated so
// a single notice stays readable.
func ToolResult(data map[string]any) (name, result string, success bool) {
	name = stringField(data, "function_name", "tool")
	if name == "" {
		name = "Unknown Tool"
	}
	success = true
	if v, ok := data["success"].(bool); ok {
		success = v
	}
	switch v := data["result"].(type) {
	case string:
		result = v
	case map[string]any:
		result = stringField(v, "content", "message")
		if result == "" {
			result = fmt.Sprintf("%v", v)
		}
	}
	if result == "" {
		result = Text(data, "Tool execution completed", "message")
	}
	if len(result) > 500 {
		result = result[:497] + "..."
	}
	return name, result, success
}

// FileRef identifies one artifact created by the remote task.
type FileRef struct {
	RemotePath  string
	DisplayName string
}

// PayloadRules holds the deployment-specific resolution knobs; OutputDir is
// the remote directory assumed when an event carries only a bare filename.
type PayloadRules struct {
	OutputDir string
}

// ResolveFile extracts a file reference from a file_created payload,
// handling both the nested {"file": {...}} and the flat shapes.
func (r PayloadRules) ResolveFile(data map[string]any) FileRef {
	var filePath, fileName string
	if nested := mapField(data, "file"); nested != nil {
		filePath = stringField(nested, "relative_path", "path")
		fileName = stringField(nested, "name", "filename")
	}
	if filePath == "" {
		filePath = stringField(data, "relative_path", "path")
	}
	if fileName == "" {
		fileName = stringField(data, "name", "filename")
	}
	if filePath == "" && fileName != "" {
		dir := r.OutputDir
		if dir == "" {
			dir = "output"
		}
		filePath = dir + "/" + fileName
	}
	if filePath == "" {
		return FileRef{RemotePath: UnknownFile, DisplayName: UnknownFile}
	}
	if fileName == "" {
		fileName = path.Base(filePath)
	}
	return FileRef{RemotePath: filePath, DisplayName: fileName}
}
