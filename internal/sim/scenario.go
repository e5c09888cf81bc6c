// Package sim is a scripted stand-in for the accessibility service, the
// input hook and the recorded application. A Scenario describes an element
// tree and a timeline of user input and application events; a Backend
// replays it against a recorder.
package sim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
)

// Scenario is one scripted session.
type Scenario struct {
	Name      string      `yaml:"name"`
	ProcessID int         `yaml:"process_id"`
	Focus     string      `yaml:"focus"`
	Tree      ElementSpec `yaml:"tree"`
	Timeline  []Step      `yaml:"timeline"`
}

// ElementSpec describes an element and its subtree.
type ElementSpec struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	ControlType  string        `yaml:"control_type"`
	ClassName    string        `yaml:"class_name"`
	AutomationID string        `yaml:"automation_id"`
	FrameworkID  string        `yaml:"framework_id"`
	Bounds       [4]int        `yaml:"bounds,flow"`
	Children     []ElementSpec `yaml:"children"`
}

// Rect returns the element bounds.
func (e ElementSpec) Rect() controltree.Rect {
	return controltree.Rect{Left: e.Bounds[0], Top: e.Bounds[1], Right: e.Bounds[2], Bottom: e.Bounds[3]}
}

// Step is one timeline entry. Exactly one field is set.
type Step struct {
	Mouse     *MouseStep     `yaml:"mouse,omitempty"`
	Key       *KeyStep       `yaml:"key,omitempty"`
	Event     *EventStep     `yaml:"event,omitempty"`
	Property  *PropertyStep  `yaml:"property,omitempty"`
	Focus     string         `yaml:"focus,omitempty"`
	Structure *StructureStep `yaml:"structure,omitempty"`
	Add       *AddStep       `yaml:"add,omitempty"`
	Remove    string         `yaml:"remove,omitempty"`
	Exit      bool           `yaml:"exit,omitempty"`
}

// MouseStep presses and releases a button over an element or at a point.
// Click names an element and wins over X and Y; the press lands on the
// element's centre. Button defaults to left and Action to click.
type MouseStep struct {
	Click  string `yaml:"click"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Button string `yaml:"button"`
	Action string `yaml:"action"`
}

// KeyStep types text or presses a named key.
type KeyStep struct {
	Text  string `yaml:"text"`
	Press string `yaml:"press"`
}

// EventStep raises a named application event.
type EventStep struct {
	Name   string `yaml:"name"`
	Sender string `yaml:"sender"`
}

// PropertyStep raises a property-changed event.
type PropertyStep struct {
	Name   string `yaml:"name"`
	Sender string `yaml:"sender"`
	Value  any    `yaml:"value"`
}

// StructureStep raises a structure-changed event.
type StructureStep struct {
	Sender string `yaml:"sender"`
	Change string `yaml:"change"`
}

// AddStep attaches a new subtree, such as an opened menu, under Parent.
type AddStep struct {
	Parent  string      `yaml:"parent"`
	Element ElementSpec `yaml:"element"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks element ids and step references.
func (sc *Scenario) Validate() error {
	var errs []string
	ids := make(map[string]bool)
	collectIDs(sc.Tree, ids, &errs)
	if sc.Tree.ID == "" {
		errs = append(errs, "tree: root id is required")
	}
	if sc.ProcessID <= 0 {
		errs = append(errs, "process_id must be positive")
	}
	if sc.Focus != "" && !ids[sc.Focus] {
		errs = append(errs, fmt.Sprintf("focus: unknown element %q", sc.Focus))
	}

	for i, st := range sc.Timeline {
		loc := fmt.Sprintf("timeline[%d]", i)
		set := 0
		for _, ok := range []bool{
			st.Mouse != nil, st.Key != nil, st.Event != nil, st.Property != nil, st.Focus != "",
			st.Structure != nil, st.Add != nil, st.Remove != "", st.Exit,
		} {
			if ok {
				set++
			}
		}
		if set != 1 {
			errs = append(errs, fmt.Sprintf("%s: exactly one action is required, got %d", loc, set))
			continue
		}
		switch {
		case st.Mouse != nil:
			if st.Mouse.Click != "" && !ids[st.Mouse.Click] {
				errs = append(errs, fmt.Sprintf("%s.mouse: unknown element %q", loc, st.Mouse.Click))
			}
			switch st.Mouse.Action {
			case "", "click", "down", "up":
			default:
				errs = append(errs, fmt.Sprintf("%s.mouse: unknown action %q", loc, st.Mouse.Action))
			}
		case st.Key != nil:
			if (st.Key.Text == "") == (st.Key.Press == "") {
				errs = append(errs, loc+".key: exactly one of text or press is required")
			}
		case st.Event != nil:
			if st.Event.Name == "" {
				errs = append(errs, loc+".event: name is required")
			}
		case st.Property != nil:
			if st.Property.Name == "" {
				errs = append(errs, loc+".property: name is required")
			}
		case st.Add != nil:
			if !ids[st.Add.Parent] {
				errs = append(errs, fmt.Sprintf("%s.add: unknown parent %q", loc, st.Add.Parent))
			}
			// Later steps may refer to the added elements.
			collectIDs(st.Add.Element, ids, &errs)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("scenario validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func collectIDs(e ElementSpec, ids map[string]bool, errs *[]string) {
	if e.ID != "" {
		if ids[e.ID] {
			*errs = append(*errs, fmt.Sprintf("duplicate element id %q", e.ID))
		}
		ids[e.ID] = true
	}
	for _, c := range e.Children {
		collectIDs(c, ids, errs)
	}
}
