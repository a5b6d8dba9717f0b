package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trafficLightSource = `from statemachine import StateMachine, State


class TrafficLight(StateMachine):
    green = State(initial=True)
    yellow = State()
    red = State()

    cycle = green.to(yellow) | yellow.to(red) | red.to(green)
`

const graphMachineSource = `from transitions.extensions import GraphMachine

states = ['solid', 'liquid', 'gas']
transitions = [
    {'trigger': 'melt', 'source': 'solid', 'dest': 'liquid'},
    {'trigger': 'evaporate', 'source': 'liquid', 'dest': 'gas'},
]
machine = GraphMachine(states=states, transitions=transitions, initial='solid')
`

const plainMachineSource = `from transitions import Machine

machine = Machine(states=['a', 'b'], initial='a')
`

const dfaSource = `from automata.fa.dfa import DFA

dfa = DFA(
    states={'q0', 'q1'},
    input_symbols={'0', '1'},
    transitions={'q0': {'0': 'q0', '1': 'q1'}, 'q1': {'0': 'q0', '1': 'q1'}},
    initial_state='q0',
    final_states={'q1'},
)
`

func newTestDetector(t *testing.T, floor float64) *Detector {
	t.Helper()
	d := NewDetector(DefaultRegistry(), floor, nil)
	t.Cleanup(d.Close)
	return d
}

func TestDetect_StateMachineSubclass(t *testing.T) {
	d := newTestDetector(t, 0.8)

	candidates := d.Detect("traffic.py", []byte(trafficLightSource))
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "python-statemachine", c.Kind)
	assert.Equal(t, 4, c.StartLine)
	assert.Equal(t, 9, c.EndLine)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Contains(t, c.Source, "from statemachine import StateMachine, State")
	assert.Contains(t, c.Source, "class TrafficLight(StateMachine):")
	assert.Contains(t, c.Source, "cycle = green.to(yellow)")
	assert.Equal(t, "traffic.py:4", c.Provenance())
}

func TestDetect_GraphMachineCall(t *testing.T) {
	d := newTestDetector(t, 0.8)

	candidates := d.Detect("matter.py", []byte(graphMachineSource))
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "transitions", c.Kind)
	// Span widens backwards over the contiguous states/transitions block.
	assert.Equal(t, 3, c.StartLine)
	assert.Equal(t, 8, c.EndLine)
	assert.Contains(t, c.Source, "from transitions.extensions import GraphMachine")
	assert.Contains(t, c.Source, "states = ['solid', 'liquid', 'gas']")
	assert.Contains(t, c.Source, "machine = GraphMachine(")
}

func TestDetect_PlainMachineBelowFloor(t *testing.T) {
	d := newTestDetector(t, 0.8)

	candidates := d.Detect("plain.py", []byte(plainMachineSource))
	assert.Empty(t, candidates)
	assert.Equal(t, 1, d.BelowFloor())

	// With the floor lowered the heuristic match comes through.
	low := newTestDetector(t, 0.4)
	candidates = low.Detect("plain.py", []byte(plainMachineSource))
	require.Len(t, candidates, 1)
	assert.Equal(t, "transitions", candidates[0].Kind)
	assert.Equal(t, 0.5, candidates[0].Confidence)
}

func TestDetect_AutomataDFA(t *testing.T) {
	d := newTestDetector(t, 0.8)

	candidates := d.Detect("dfa.py", []byte(dfaSource))
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "automata-lib", c.Kind)
	assert.Contains(t, c.Source, "from automata.fa.dfa import DFA")
	assert.Contains(t, c.Source, "initial_state='q0'")
}

func TestDetect_NoImportsNoMatch(t *testing.T) {
	d := newTestDetector(t, 0.8)

	// Same shapes, but without the library imports nothing matches.
	src := strings.ReplaceAll(trafficLightSource, "from statemachine import StateMachine, State", "")
	assert.Empty(t, d.Detect("bare.py", []byte(src)))

	src = `class StateMachine:
    pass

class TrafficLight(StateMachine):
    pass
`
	assert.Empty(t, d.Detect("homonym.py", []byte(src)))
}

func TestDetect_BrokenSourceYieldsNothing(t *testing.T) {
	d := newTestDetector(t, 0.8)

	assert.Empty(t, d.Detect("broken.py", []byte("class Foo(:\n    def")))
	assert.NotPanics(t, func() {
		d.Detect("empty.py", nil)
	})
}

func TestDetect_NonUTF8Skipped(t *testing.T) {
	d := newTestDetector(t, 0.8)

	candidates := d.Detect("binary.py", []byte{0xff, 0xfe, 0x00, 0x41})
	assert.Empty(t, candidates)
	assert.True(t, d.ParseFailed())
}

func TestDetect_MultipleCandidatesPerFile(t *testing.T) {
	d := newTestDetector(t, 0.8)

	src := trafficLightSource + `

class Turnstile(StateMachine):
    locked = State(initial=True)
    unlocked = State()

    push = unlocked.to(locked)
    coin = locked.to(unlocked)
`
	candidates := d.Detect("two.py", []byte(src))
	require.Len(t, candidates, 2)
	assert.Equal(t, "python-statemachine", candidates[0].Kind)
	assert.Equal(t, "python-statemachine", candidates[1].Kind)
	assert.NotEqual(t, candidates[0].StartLine, candidates[1].StartLine)
}

func TestImportIndexing(t *testing.T) {
	d := newTestDetector(t, 0.8)

	src := `import os
import transitions.extensions as ext
from statemachine import StateMachine
from automata.fa.dfa import DFA as Automaton
`
	d.Detect("imports.py", []byte(src))

	// Re-parse through a fresh file to inspect the index directly.
	f := newFile("imports.py", []byte(src))
	tree, err := d.parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	defer tree.Close()
	d.indexImports(tree.RootNode(), f)

	assert.True(t, f.Imports("os"))
	assert.True(t, f.Imports("transitions"))
	assert.True(t, f.Imports("transitions.extensions"))
	assert.True(t, f.Imports("statemachine"))
	assert.True(t, f.Imports("automata"))
	assert.False(t, f.Imports("json"))
	assert.True(t, f.ImportsName("StateMachine"))
	assert.True(t, f.ImportsName("DFA"))
}

func TestHasFSMImports(t *testing.T) {
	assert.True(t, HasFSMImports([]byte(trafficLightSource)))
	assert.True(t, HasFSMImports([]byte(graphMachineSource)))
	assert.True(t, HasFSMImports([]byte(dfaSource)))
	assert.False(t, HasFSMImports([]byte("import os\nprint('hello')\n")))
}
