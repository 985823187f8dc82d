package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/windestimator/replay"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"windest"}, args...))
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestFuseAction(t *testing.T) {
	out, _, err := runApp(t, "fuse",
		"--velocity", "15,0,0",
		"--state", "0,0,1",
		"--covariance", "1,1,0.1",
		"--airspeed", "15",
		"--noise", "0.5",
	)
	test.That(t, err, test.ShouldBeNil)

	var rec replay.Record
	test.That(t, json.Unmarshal([]byte(out), &rec), test.ShouldBeNil)
	test.That(t, rec.Innovation, test.ShouldAlmostEqual, 0, 1e-4)
	test.That(t, rec.PredictedAirspeed, test.ShouldAlmostEqual, 15, 1e-4)
	test.That(t, rec.H[0], test.ShouldAlmostEqual, -1, 1e-5)
	// H P H' = 1 + 0.1*225
	test.That(t, rec.InnovationVariance, test.ShouldAlmostEqual, 24, 1e-2)
}

func TestFuseActionWithConfig(t *testing.T) {
	cfgPath := writeFile(t, "config.json", `{
		"measurement_noise": 2,
		"epsilon": 0.01,
		"initial_covariance": [1, 0, 0, 0, 1, 0, 0, 0, 0.1]
	}`)

	out, _, err := runApp(t, "--config", cfgPath, "fuse",
		"--velocity", "0,0,0",
		"--state", "0,0,1",
		"--airspeed", "5",
	)
	test.That(t, err, test.ShouldBeNil)
	var rec replay.Record
	test.That(t, json.Unmarshal([]byte(out), &rec), test.ShouldBeNil)
	// sqrt(0.01) = 0.1
	test.That(t, rec.PredictedAirspeed, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, rec.Innovation, test.ShouldAlmostEqual, 4.9, 1e-9)
	test.That(t, rec.InnovationVariance, test.ShouldAlmostEqual, 2.001, 1e-9)

	// Flags override the file.
	out, _, err = runApp(t, "--config", cfgPath, "fuse",
		"--velocity", "0,0,0",
		"--state", "0,0,1",
		"--airspeed", "5",
		"--epsilon", "0.04",
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, json.Unmarshal([]byte(out), &rec), test.ShouldBeNil)
	test.That(t, rec.PredictedAirspeed, test.ShouldAlmostEqual, 0.2, 1e-9)
}

func TestFuseActionErrors(t *testing.T) {
	_, _, err := runApp(t, "fuse", "--velocity", "1,2,3", "--state", "0,0,1", "--airspeed", "5")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no initial_covariance configured")

	_, _, err = runApp(t, "fuse", "--velocity", "1,2", "--state", "0,0,1", "--covariance", "1,1,1", "--airspeed", "5")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--velocity needs 3 values")

	_, _, err = runApp(t, "fuse", "--velocity", "1,2,3", "--state", "0,0,1", "--covariance", "1,1", "--airspeed", "5")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "covariance needs 9 values")

	_, _, err = runApp(t, "fuse", "--velocity", "1,2,3", "--state", "0,0,1", "--covariance", "1,1,1",
		"--airspeed", "5", "--noise", "-1")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "measurement_noise must be non-negative")
}

func TestReplayAction(t *testing.T) {
	samples := strings.Join([]string{
		`{"velocity":{"X":15,"Y":0,"Z":0},"state":{"wind_north":0,"wind_east":0,"scale_factor":1},"airspeed":15}`,
		`oops`,
		`{"velocity":{"X":12,"Y":9,"Z":0},"state":{"wind_north":1,"wind_east":-2,"scale_factor":1},"airspeed":15.5}`,
	}, "\n")
	inPath := writeFile(t, "samples.jsonl", samples)
	cfgPath := writeFile(t, "config.json", `{"measurement_noise": 0.5, "initial_covariance": [1,0,0,0,1,0,0,0,0.1]}`)
	outPath := filepath.Join(t.TempDir(), "records.jsonl")

	stdout, stderr, err := runApp(t, "--config", cfgPath, "replay", "--input", inPath, "--output", outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stdout, test.ShouldBeEmpty)
	test.That(t, stderr, test.ShouldContainSubstring, "skipping sample")
	test.That(t, stderr, test.ShouldContainSubstring, "replay finished")
	test.That(t, stderr, test.ShouldContainSubstring, `"samples":2`)
	test.That(t, stderr, test.ShouldContainSubstring, `"failures":1`)

	//nolint:gosec
	written, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	test.That(t, len(lines), test.ShouldEqual, 2)

	// Without --output the records go to stdout.
	stdout, _, err = runApp(t, "--config", cfgPath, "replay", "--input", inPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(stdout, "\n"), test.ShouldEqual, 2)
}

func TestReplayActionLogLevel(t *testing.T) {
	inPath := writeFile(t, "samples.jsonl", "oops\n")
	t.Setenv("WINDEST_NOISE", "0.5")
	cfgPath := writeFile(t, "config.json",
		`{"measurement_noise": ${WINDEST_NOISE}, "initial_covariance": [1,0,0,0,1,0,0,0,0.1], "log_level": "error"}`)

	_, stderr, err := runApp(t, "--config", cfgPath, "replay", "--input", inPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stderr, test.ShouldContainSubstring, "skipping sample")
	test.That(t, stderr, test.ShouldNotContainSubstring, "replay finished")

	// The flag overrides the file.
	_, stderr, err = runApp(t, "--config", cfgPath, "--log-level", "info", "replay", "--input", inPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stderr, test.ShouldContainSubstring, "replay finished")

	_, _, err = runApp(t, "--log-level", "loud", "replay", "--input", inPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestSchemaAction(t *testing.T) {
	out, _, err := runApp(t, "schema")
	test.That(t, err, test.ShouldBeNil)
	var schema map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &schema), test.ShouldBeNil)
	test.That(t, schema["properties"], test.ShouldContainKey, "airspeed")

	out, _, err = runApp(t, "schema", "--record")
	test.That(t, err, test.ShouldBeNil)
	schema = nil
	test.That(t, json.Unmarshal([]byte(out), &schema), test.ShouldBeNil)
	test.That(t, schema["properties"], test.ShouldContainKey, "innovation")
}
