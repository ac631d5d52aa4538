package zmachine

import (
	"testing"

	"github.com/tholian/zinc/zcore"
)

func expectMachineError(t *testing.T, kind zcore.ErrorKind) {
	t.Helper()
	r := recover()
	if r == nil {
		t.Fatalf("expected a panic carrying a %s MachineError, got none", kind)
	}
	err, ok := r.(*zcore.MachineError)
	if !ok {
		t.Fatalf("expected *zcore.MachineError, got %T: %v", r, r)
	}
	if err.Kind != kind {
		t.Fatalf("error kind = %s, want %s", err.Kind, kind)
	}
}

func TestCallStackFramePushPop(t *testing.T) {
	frame := CallStackFrame{}
	frame.push(1)
	frame.push(2)

	if got := frame.peekTop(); got != 2 {
		t.Fatalf("peekTop = %d, want 2", got)
	}
	if got := frame.pop(); got != 2 {
		t.Fatalf("pop = %d, want 2", got)
	}
	if got := frame.pop(); got != 1 {
		t.Fatalf("pop = %d, want 1", got)
	}
}

func TestCallStackFramePopEmptyRaises(t *testing.T) {
	defer expectMachineError(t, zcore.StackUnderflow)
	frame := CallStackFrame{}
	frame.pop()
}

func TestCallStackPushAssignsFramePointer(t *testing.T) {
	var stack CallStack
	stack.push(CallStackFrame{}) // pseudo-frame
	stack.push(CallStackFrame{})
	stack.push(CallStackFrame{})

	if depth := stack.depth(); depth != 3 {
		t.Fatalf("depth = %d, want 3", depth)
	}
	if fp := stack.peek().framePointer; fp != 2 {
		t.Fatalf("framePointer = %d, want 2", fp)
	}
}

func TestCallStackPopPseudoFrameRaises(t *testing.T) {
	defer expectMachineError(t, zcore.BadReturn)
	var stack CallStack
	stack.push(CallStackFrame{})
	stack.pop()
}

func TestCallStackUnwindTo(t *testing.T) {
	var stack CallStack
	stack.push(CallStackFrame{})
	stack.push(CallStackFrame{})
	stack.push(CallStackFrame{})
	stack.push(CallStackFrame{})

	stack.unwindTo(1)
	if depth := stack.depth(); depth != 2 {
		t.Fatalf("depth after unwindTo(1) = %d, want 2", depth)
	}
}

func TestCallStackCopyIsDeep(t *testing.T) {
	var stack CallStack
	stack.push(CallStackFrame{locals: []uint16{1, 2, 3}})
	stack.peek().push(9)

	copied := stack.copy()
	copied.peek().locals[0] = 99
	copied.peek().push(100)

	if stack.peek().locals[0] != 1 {
		t.Fatalf("original locals mutated by copy: got %d, want 1", stack.peek().locals[0])
	}
	if len(stack.peek().routineStack) != 1 {
		t.Fatalf("original routine stack mutated by copy: len = %d, want 1", len(stack.peek().routineStack))
	}
}
