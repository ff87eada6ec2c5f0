package scoring

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// celEvaluator compiles and runs expression rules. Expression rules are the
// escape hatch for conditions the field/operator/literal form cannot express
// (conjunctions, arithmetic across fields). Programs are cached by expression
// text so repeated passes do not recompile.
type celEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newCELEvaluator() (*celEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("loan", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &celEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// validate compiles an expression without caching it, for configuration-time
// checks. The expression must produce a boolean.
func (c *celEvaluator) validate(expression string) error {
	_, err := c.compile(expression)
	return err
}

// eval runs an expression against the evaluation context. Any compile or
// runtime error is returned to the caller, which treats the rule as not
// triggered.
func (c *celEvaluator) eval(expression string, ec *Context) (bool, error) {
	program, err := c.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(c.activation(ec))
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	return out == types.True, nil
}

func (c *celEvaluator) program(expression string) (cel.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := c.compile(expression)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()

	return program, nil
}

func (c *celEvaluator) compile(expression string) (cel.Program, error) {
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return program, nil
}

// activation exposes the context as CEL variables. Absent optional attributes
// are omitted from the maps, so expressions touching them error out and the
// rule degrades to not-triggered, matching field resolution semantics.
func (c *celEvaluator) activation(ec *Context) map[string]any {
	customer := map[string]any{
		"age":     ec.Age(),
		"address": ec.Customer.Address,
		"email":   ec.Customer.Email,
	}
	if ec.Customer.CreditScore != nil {
		customer["creditScore"] = *ec.Customer.CreditScore
	}
	if ec.Customer.AnnualIncome != nil {
		customer["annualIncome"] = *ec.Customer.AnnualIncome
	}
	if ec.Customer.ExistingDebt != nil {
		customer["existingDebt"] = *ec.Customer.ExistingDebt
	}
	if ec.Customer.EmploymentStatus != nil {
		customer["employmentStatus"] = *ec.Customer.EmploymentStatus
	}
	if ec.Customer.MaritalStatus != nil {
		customer["maritalStatus"] = *ec.Customer.MaritalStatus
	}
	if ec.Customer.Dependents != nil {
		customer["dependents"] = *ec.Customer.Dependents
	}
	if ec.hasRecentApplications {
		customer["recentApplications"] = ec.recentApplications
	}

	loan := map[string]any{
		"amount":     ec.Loan.Amount,
		"termMonths": ec.Loan.TermMonths,
	}

	return map[string]any{
		"customer": customer,
		"loan":     loan,
	}
}
