// Package replay drives a session against the simulated tracking engine
// from a JSON or YAML script. It backs the simulate command and
// end-to-end tests.
package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/arthylene/internal/fsutil"
	"github.com/banshee-data/arthylene/internal/geom"
	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpScan       = "scan"
	OpSaveScan   = "save_scan"
	OpHoldSaves  = "hold_saves"
	OpRelease    = "release_saves"
	OpWaitSave   = "wait_save"
	OpLoad       = "load"
	OpRelocalize = "relocalize"
	OpPose       = "pose"
	OpCorrect    = "correct"
	OpProduce    = "produce"
	OpTouch      = "touch"
	OpDepth      = "depth"
	OpRemove     = "remove"
	OpSave       = "save"
	OpCancel     = "cancel"
	OpPause      = "pause"
	OpDisconnect = "disconnect"
	OpTick       = "tick"
	OpExpect     = "expect"
)

var knownOps = map[string]bool{
	OpScan: true, OpSaveScan: true, OpHoldSaves: true, OpRelease: true,
	OpWaitSave: true, OpLoad: true,
	OpRelocalize: true, OpPose: true, OpCorrect: true, OpProduce: true,
	OpTouch: true, OpDepth: true, OpRemove: true, OpSave: true,
	OpCancel: true, OpPause: true, OpDisconnect: true, OpTick: true,
	OpExpect: true,
}

// ErrInvalidScript is returned for scripts that cannot be run.
var ErrInvalidScript = errors.New("invalid replay script")

const maxScriptBytes = 4 << 20

// Wall describes a square grid of depth points facing the sensor.
type Wall struct {
	Distance float64 `json:"distance" yaml:"distance"`
	HalfSize float64 `json:"half_size" yaml:"half_size"`
	Step     float64 `json:"step" yaml:"step"`
}

// Points returns the grid in the sensor frame.
func (w Wall) Points() []geom.Vec {
	step := w.Step
	if step <= 0 {
		step = 0.01
	}
	n := int(w.HalfSize/step + 1e-9)
	pts := make([]geom.Vec, 0, (2*n+1)*(2*n+1))
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			pts = append(pts, geom.V(float64(i)*step, float64(j)*step, w.Distance))
		}
	}
	return pts
}

// Expect holds the assertions of an expect step. Unset fields are not
// checked.
type Expect struct {
	Mode        string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Anchors     *int   `json:"anchors,omitempty" yaml:"anchors,omitempty"`
	Initialized *bool  `json:"initialized,omitempty" yaml:"initialized,omitempty"`
	Maps        *int   `json:"maps,omitempty" yaml:"maps,omitempty"`
	LastError   string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Step is one scripted action.
type Step struct {
	Op string `json:"op" yaml:"op"`

	// save_scan, load
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// load
	ViewOnly bool `json:"view_only,omitempty" yaml:"view_only,omitempty"`
	// pose, correct
	Position    [3]float64  `json:"position" yaml:"position"`
	Orientation *[4]float64 `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	// correct: the pose step (1-based) whose timestamp is revised
	PoseStep int `json:"pose_step,omitempty" yaml:"pose_step,omitempty"`
	// produce
	Type int `json:"type,omitempty" yaml:"type,omitempty"`
	// touch
	X float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y float64 `json:"y,omitempty" yaml:"y,omitempty"`
	// depth
	Wall   *Wall        `json:"wall,omitempty" yaml:"wall,omitempty"`
	Points [][3]float64 `json:"points,omitempty" yaml:"points,omitempty"`
	// tick
	Count int `json:"count,omitempty" yaml:"count,omitempty"`
	// expect
	Expect *Expect `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Pose returns the device pose of a pose or correct step.
func (s Step) Pose() geom.Pose {
	q := geom.Identity
	if s.Orientation != nil {
		q = geom.QuatFromArray(*s.Orientation).Normalize()
	}
	return geom.Pose{Position: geom.V(s.Position[0], s.Position[1], s.Position[2]), Rotation: q}
}

// DepthPoints returns the sensor-frame points of a depth step.
func (s Step) DepthPoints() []geom.Vec {
	var pts []geom.Vec
	if s.Wall != nil {
		pts = s.Wall.Points()
	}
	for _, p := range s.Points {
		pts = append(pts, geom.V(p[0], p[1], p[2]))
	}
	return pts
}

// Script is a named list of steps.
type Script struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Validate checks every step.
func (sc Script) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScript)
	}
	poses := 0
	for i, st := range sc.Steps {
		if !knownOps[st.Op] {
			return fmt.Errorf("%w: step %d: unknown op %q", ErrInvalidScript, i+1, st.Op)
		}
		switch st.Op {
		case OpPose:
			poses++
		case OpCorrect:
			if st.PoseStep < 1 || st.PoseStep > poses {
				return fmt.Errorf("%w: step %d: pose_step %d does not name an earlier pose", ErrInvalidScript, i+1, st.PoseStep)
			}
		case OpDepth:
			if st.Wall == nil && len(st.Points) == 0 {
				return fmt.Errorf("%w: step %d: depth needs a wall or points", ErrInvalidScript, i+1)
			}
		case OpExpect:
			if st.Expect == nil {
				return fmt.Errorf("%w: step %d: expect needs an expect block", ErrInvalidScript, i+1)
			}
		case OpTick:
			if st.Count < 0 {
				return fmt.Errorf("%w: step %d: negative tick count", ErrInvalidScript, i+1)
			}
		}
	}
	return nil
}

// ParseScript decodes and validates a JSON script. Unknown fields are
// rejected.
func ParseScript(r io.Reader) (Script, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxScriptBytes))
	dec.DisallowUnknownFields()
	var sc Script
	if err := dec.Decode(&sc); err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := sc.Validate(); err != nil {
		return Script{}, err
	}
	return sc, nil
}

// ParseScriptYAML is ParseScript for YAML input.
func ParseScriptYAML(r io.Reader) (Script, error) {
	dec := yaml.NewDecoder(io.LimitReader(r, maxScriptBytes))
	dec.KnownFields(true)
	var sc Script
	if err := dec.Decode(&sc); err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := sc.Validate(); err != nil {
		return Script{}, err
	}
	return sc, nil
}

// LoadScript reads a script file from fsys. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func LoadScript(fsys fsutil.FileSystem, path string) (Script, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script %s: %w", path, err)
	}
	parse := ParseScript
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parse = ParseScriptYAML
	}
	sc, err := parse(bytes.NewReader(data))
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}
