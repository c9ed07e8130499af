package engine

import (
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/hostctx"
	"github.com/fusabi-lang/fusabi-host/value"
)

// Builtin host functions. Each checks its capability before any other
// work, then the sandbox target, then charges the relevant op counter,
// and only then performs the effect. A denied call therefore has no
// side effect at all.

var httpClient = resty.New().SetTimeout(30 * time.Second)

func registerBuiltins(r *Registry, netLimiter *rate.Limiter) {
	r.Register("now", builtinNow)
	r.Register("random", builtinRandom)
	r.Register("print", builtinPrint)
	r.Register("log", builtinLog)
	r.Register("metric", builtinMetric)
	r.Register("sleep", builtinSleep)
	r.Register("read_file", builtinReadFile)
	r.Register("write_file", builtinWriteFile)
	r.Register("env", builtinEnv)
	r.Register("http_get", makeHTTPGet(netLimiter))
	r.Register("to_json", builtinToJSON)
	r.Register("from_json", builtinFromJSON)
	r.Register("len", builtinLen)
}

func builtinNow(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.TimeRead); err != nil {
		return value.Null(), err
	}
	return value.Int(time.Now().UnixMilli()), nil
}

func builtinRandom(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.Random); err != nil {
		return value.Null(), err
	}
	return value.Float(rand.Float64()), nil
}

func builtinPrint(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.StdoutWrite); err != nil {
		return value.Null(), err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Text()
	}
	line := strings.Join(parts, " ") + "\n"
	if err := rc.WriteOutput([]byte(line)); err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}

func builtinLog(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.Logging); err != nil {
		return value.Null(), err
	}
	if len(args) != 2 {
		return value.Null(), fmt.Errorf("log takes (level, message)")
	}
	levelName, _ := args[0].AsString()
	msg := args[1].Text()
	level := hostctx.LevelInfo
	switch levelName {
	case "debug":
		level = hostctx.LevelDebug
	case "warn":
		level = hostctx.LevelWarn
	case "error":
		level = hostctx.LevelError
	}
	rc.Host().Log(level, msg)
	return value.Null(), nil
}

func builtinMetric(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.Metrics); err != nil {
		return value.Null(), err
	}
	if len(args) != 2 {
		return value.Null(), fmt.Errorf("metric takes (name, value)")
	}
	name, ok := args[0].AsString()
	if !ok {
		return value.Null(), fmt.Errorf("metric name must be a string")
	}
	v, ok := args[1].AsFloat()
	if !ok {
		return value.Null(), fmt.Errorf("metric value must be numeric")
	}
	rc.Host().RecordMetric(name, v)
	return value.Null(), nil
}

func builtinSleep(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.TimeRead); err != nil {
		return value.Null(), err
	}
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("sleep takes (millis)")
	}
	ms, ok := args[0].AsInt()
	if !ok || ms < 0 {
		return value.Null(), fmt.Errorf("sleep duration must be a non-negative int")
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return value.Null(), nil
	case <-rc.Context().Done():
		return value.Null(), rc.Interrupted()
	}
}

func builtinReadFile(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.FsRead); err != nil {
		return value.Null(), err
	}
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("read_file takes (path)")
	}
	path, ok := args[0].AsString()
	if !ok {
		return value.Null(), fmt.Errorf("path must be a string")
	}
	if err := rc.Sandbox().CheckRead(path); err != nil {
		return value.Null(), err
	}
	if err := rc.Tracker().RecordFsOp(); err != nil {
		return value.Null(), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return value.Null(), fmt.Errorf("read %s: %w", path, err)
	}
	if err := rc.Tracker().RecordMemory(int64(len(data))); err != nil {
		return value.Null(), err
	}
	return value.Str(string(data)), nil
}

func builtinWriteFile(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.FsWrite); err != nil {
		return value.Null(), err
	}
	if len(args) != 2 {
		return value.Null(), fmt.Errorf("write_file takes (path, data)")
	}
	path, ok := args[0].AsString()
	if !ok {
		return value.Null(), fmt.Errorf("path must be a string")
	}
	if err := rc.Sandbox().CheckWrite(path); err != nil {
		return value.Null(), err
	}
	if err := rc.Tracker().RecordFsOp(); err != nil {
		return value.Null(), err
	}
	if err := os.WriteFile(path, []byte(args[1].Text()), 0o644); err != nil {
		return value.Null(), fmt.Errorf("write %s: %w", path, err)
	}
	return value.Null(), nil
}

func builtinEnv(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.EnvRead); err != nil {
		return value.Null(), err
	}
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("env takes (name)")
	}
	name, ok := args[0].AsString()
	if !ok {
		return value.Null(), fmt.Errorf("variable name must be a string")
	}
	if err := rc.Sandbox().CheckEnv(name); err != nil {
		return value.Null(), err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return value.Null(), nil
	}
	return value.Str(v), nil
}

func makeHTTPGet(limiter *rate.Limiter) HostFunc {
	return func(rc *RunContext, args []value.Value) (value.Value, error) {
		if err := rc.Require(capability.NetRequest); err != nil {
			return value.Null(), err
		}
		if len(args) != 1 {
			return value.Null(), fmt.Errorf("http_get takes (url)")
		}
		rawURL, ok := args[0].AsString()
		if !ok {
			return value.Null(), fmt.Errorf("url must be a string")
		}
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return value.Null(), fmt.Errorf("bad url %q", rawURL)
		}
		if err := rc.Sandbox().CheckHost(u.Host); err != nil {
			return value.Null(), err
		}
		if err := rc.Tracker().RecordNetOp(); err != nil {
			return value.Null(), err
		}
		if limiter != nil {
			if err := limiter.Wait(rc.Context()); err != nil {
				return value.Null(), rc.Interrupted()
			}
		}
		resp, err := httpClient.R().SetContext(rc.Context()).Get(rawURL)
		if err != nil {
			if rc.Context().Err() != nil {
				return value.Null(), rc.Interrupted()
			}
			return value.Null(), fmt.Errorf("http get %s: %w", rawURL, err)
		}
		body := resp.Body()
		if err := rc.Tracker().RecordMemory(int64(len(body))); err != nil {
			return value.Null(), err
		}
		return value.Map(map[string]value.Value{
			"status": value.Int(int64(resp.StatusCode())),
			"body":   value.Str(string(body)),
		}), nil
	}
}

func builtinToJSON(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.Serialize); err != nil {
		return value.Null(), err
	}
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("to_json takes (value)")
	}
	data, err := value.ToJSON(args[0])
	if err != nil {
		return value.Null(), err
	}
	if err := rc.Tracker().RecordMemory(int64(len(data))); err != nil {
		return value.Null(), err
	}
	return value.Str(string(data)), nil
}

func builtinFromJSON(rc *RunContext, args []value.Value) (value.Value, error) {
	if err := rc.Require(capability.Serialize); err != nil {
		return value.Null(), err
	}
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("from_json takes (text)")
	}
	text, ok := args[0].AsString()
	if !ok {
		return value.Null(), fmt.Errorf("from_json input must be a string")
	}
	v, err := value.FromJSON([]byte(text))
	if err != nil {
		return value.Null(), err
	}
	if err := rc.Tracker().RecordMemory(v.Size()); err != nil {
		return value.Null(), err
	}
	return v, nil
}

func builtinLen(rc *RunContext, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), fmt.Errorf("len takes (value)")
	}
	v := args[0]
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return value.Int(int64(len(s))), nil
	case value.KindList:
		l, _ := v.AsList()
		return value.Int(int64(len(l))), nil
	case value.KindMap:
		m, _ := v.AsMap()
		return value.Int(int64(len(m))), nil
	case value.KindBytes:
		b, _ := v.AsBytes()
		return value.Int(int64(len(b))), nil
	default:
		return value.Null(), fmt.Errorf("len of %s", v.Kind())
	}
}
