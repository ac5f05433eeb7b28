package vm

// OutcomeCode classifies how an execution ended.
type OutcomeCode int

const (
	// Completed means the program ran to an exit instruction.
	Completed OutcomeCode = iota
	// BudgetExhausted means the program consumed its entire branch budget.
	BudgetExhausted
	// Faulted means the program broke a sandbox rule (bad opcode, bad memory
	// access, division by zero, jump out of the program).
	Faulted
)

func (c OutcomeCode) String() string {
	switch c {
	case Completed:
		return "completed"
	case BudgetExhausted:
		return "budget_exhausted"
	case Faulted:
		return "fault"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one execution attempt. Exactly one Outcome
// is produced per run. Result is only meaningful when Code is Completed;
// FaultReason is only set when Code is Faulted.
type Outcome struct {
	Code        OutcomeCode
	Result      int64
	FaultReason string
}

func completed(result int64) Outcome {
	return Outcome{Code: Completed, Result: result}
}

func budgetExhausted() Outcome {
	return Outcome{Code: BudgetExhausted}
}

func fault(reason string) Outcome {
	return Outcome{Code: Faulted, FaultReason: reason}
}
