package wire

import (
	"reflect"
	"testing"
)

func TestParseSwitchesCanonicalisesShortForms(t *testing.T) {
	got := ParseSwitches([]string{"-e", "1+1"})
	want := []Switch{{Name: "eval", Value: "1+1"}}
	if !reflect.DeepEqual(got.Switches, want) {
		t.Fatalf("got %+v, want %+v", got.Switches, want)
	}
}

func TestParseSwitchesDoubleDashTerminates(t *testing.T) {
	got := ParseSwitches([]string{"-e", "1+1", "--", "script.jl", "arg1", "arg2"})

	if len(got.Switches) != 1 || got.Switches[0].Name != "eval" {
		t.Fatalf("unexpected switches: %+v", got.Switches)
	}
	if got.ProgramFile == nil || *got.ProgramFile != "script.jl" {
		t.Fatalf("unexpected program file: %+v", got.ProgramFile)
	}
	if !reflect.DeepEqual(got.ProgramArgs, []string{"arg1", "arg2"}) {
		t.Fatalf("unexpected program args: %+v", got.ProgramArgs)
	}
}

func TestParseSwitchesBareProgramFile(t *testing.T) {
	got := ParseSwitches([]string{"-q", "run.jl", "foo"})

	if len(got.Switches) != 1 || got.Switches[0].Name != "q" {
		t.Fatalf("unexpected switches: %+v", got.Switches)
	}
	if got.ProgramFile == nil || *got.ProgramFile != "run.jl" {
		t.Fatalf("unexpected program file: %+v", got.ProgramFile)
	}
	if !reflect.DeepEqual(got.ProgramArgs, []string{"foo"}) {
		t.Fatalf("unexpected program args: %+v", got.ProgramArgs)
	}
}

func TestParseSwitchesMissingValueYieldsEmptyString(t *testing.T) {
	got := ParseSwitches([]string{"-e"})
	if len(got.Switches) != 1 || got.Switches[0].Value != "" {
		t.Fatalf("got %+v, want empty value", got.Switches)
	}
}

func TestParseSwitchesEqualsForm(t *testing.T) {
	got := ParseSwitches([]string{"--project=/path/to/proj"})
	value, ok := Last(got.Switches, "project")
	if !ok || value != "/path/to/proj" {
		t.Fatalf("got (%q, %v)", value, ok)
	}
}

func TestLastOccurrenceWins(t *testing.T) {
	got := ParseSwitches([]string{"--project=/one", "--project=/two", "--project=/three"})
	value, ok := Last(got.Switches, "project")
	if !ok || value != "/three" {
		t.Fatalf("got (%q, %v), want /three", value, ok)
	}
}

func TestHasMatchesLongOrShort(t *testing.T) {
	got := ParseSwitches([]string{"-h"})
	if !Has(got.Switches, "help", "h") {
		t.Fatal("expected Has to match short form -h")
	}

	got = ParseSwitches([]string{"--help"})
	if !Has(got.Switches, "help", "h") {
		t.Fatal("expected Has to match long form --help")
	}
}
