package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/openlend/kestrel/internal/domain"
)

var (
	// ErrUnknownField indicates a field path with no registered extractor.
	ErrUnknownField = errors.New("unknown field")

	// ErrNoValue indicates the underlying attribute is absent for this
	// customer or loan, so the rule cannot be evaluated against it.
	ErrNoValue = errors.New("value not present")
)

// Context is the immutable snapshot a single scoring pass evaluates against:
// the customer, the loan request, and derived quantities computed once at
// construction so every rule in the pass sees the same values.
type Context struct {
	Customer *domain.Customer
	Loan     *domain.LoanRequest
	Now      time.Time

	age int

	recentApplications    int64
	hasRecentApplications bool
}

// NewContext builds an evaluation context. Derived fields (age) are computed
// here, not per rule, so a pass spanning a date boundary stays consistent.
func NewContext(customer *domain.Customer, loan *domain.LoanRequest, now time.Time) *Context {
	return &Context{
		Customer: customer,
		Loan:     loan,
		Now:      now,
		age:      customer.Age(now),
	}
}

// SetRecentApplications records the customer's application count in the
// history lookback window, making customer.recentApplications resolvable.
func (c *Context) SetRecentApplications(n int64) {
	c.recentApplications = n
	c.hasRecentApplications = true
}

// Age returns the customer's age in whole years at context build time.
func (c *Context) Age() int { return c.age }

// FieldFunc extracts a typed value for one field path from the context.
type FieldFunc func(c *Context) (Value, error)

// Resolver maps symbolic field paths to extractor functions. The rule data
// model allows arbitrary field strings, so the mapping is an open registry
// rather than a switch: callers can Register additional paths.
type Resolver struct {
	fields map[string]FieldFunc
}

// NewResolver creates a resolver with the built-in field paths registered.
func NewResolver() *Resolver {
	r := &Resolver{fields: make(map[string]FieldFunc)}
	r.registerBuiltins()
	return r
}

// Register adds or replaces the extractor for a field path.
func (r *Resolver) Register(fieldPath string, fn FieldFunc) {
	r.fields[fieldPath] = fn
}

// Resolve maps a field path to a typed value from the context. Unknown paths
// and absent underlying values fail resolution; the engine treats either as
// "rule not triggered" and continues the pass.
func (r *Resolver) Resolve(fieldPath string, c *Context) (Value, error) {
	fn, ok := r.fields[fieldPath]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownField, fieldPath)
	}
	return fn(c)
}

func (r *Resolver) registerBuiltins() {
	r.Register("customer.age", func(c *Context) (Value, error) {
		return Number(float64(c.age)), nil
	})
	r.Register("customer.creditScore", func(c *Context) (Value, error) {
		if c.Customer.CreditScore == nil {
			return Value{}, fmt.Errorf("%w: customer.creditScore", ErrNoValue)
		}
		return Number(float64(*c.Customer.CreditScore)), nil
	})
	r.Register("customer.annualIncome", func(c *Context) (Value, error) {
		if c.Customer.AnnualIncome == nil {
			return Value{}, fmt.Errorf("%w: customer.annualIncome", ErrNoValue)
		}
		return Number(*c.Customer.AnnualIncome), nil
	})
	r.Register("customer.existingDebt", func(c *Context) (Value, error) {
		if c.Customer.ExistingDebt == nil {
			return Value{}, fmt.Errorf("%w: customer.existingDebt", ErrNoValue)
		}
		return Number(*c.Customer.ExistingDebt), nil
	})
	r.Register("customer.employmentStatus", func(c *Context) (Value, error) {
		if c.Customer.EmploymentStatus == nil {
			return Value{}, fmt.Errorf("%w: customer.employmentStatus", ErrNoValue)
		}
		return String(*c.Customer.EmploymentStatus), nil
	})
	r.Register("customer.maritalStatus", func(c *Context) (Value, error) {
		if c.Customer.MaritalStatus == nil {
			return Value{}, fmt.Errorf("%w: customer.maritalStatus", ErrNoValue)
		}
		return String(*c.Customer.MaritalStatus), nil
	})
	r.Register("customer.dependents", func(c *Context) (Value, error) {
		if c.Customer.Dependents == nil {
			return Value{}, fmt.Errorf("%w: customer.dependents", ErrNoValue)
		}
		return Number(float64(*c.Customer.Dependents)), nil
	})
	r.Register("customer.address", func(c *Context) (Value, error) {
		return String(c.Customer.Address), nil
	})
	r.Register("customer.email", func(c *Context) (Value, error) {
		return String(c.Customer.Email), nil
	})
	r.Register("customer.recentApplications", func(c *Context) (Value, error) {
		if !c.hasRecentApplications {
			return Value{}, fmt.Errorf("%w: customer.recentApplications", ErrNoValue)
		}
		return Number(float64(c.recentApplications)), nil
	})
	r.Register("loan.amount", func(c *Context) (Value, error) {
		return Number(c.Loan.Amount), nil
	})
	r.Register("loan.termMonths", func(c *Context) (Value, error) {
		return Number(float64(c.Loan.TermMonths)), nil
	})
	r.Register("loan.amountToIncome", func(c *Context) (Value, error) {
		if c.Customer.AnnualIncome == nil || *c.Customer.AnnualIncome == 0 {
			return Value{}, fmt.Errorf("%w: loan.amountToIncome", ErrNoValue)
		}
		return Number(c.Loan.Amount / *c.Customer.AnnualIncome), nil
	})
	r.Register("customer.debtToIncome", func(c *Context) (Value, error) {
		if c.Customer.ExistingDebt == nil || c.Customer.AnnualIncome == nil || *c.Customer.AnnualIncome == 0 {
			return Value{}, fmt.Errorf("%w: customer.debtToIncome", ErrNoValue)
		}
		return Number(*c.Customer.ExistingDebt / *c.Customer.AnnualIncome), nil
	})
}
