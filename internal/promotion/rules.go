package promotion

import (
	"github.com/jafarshop/tablepos/internal/domain"
)

func evaluateRule(rule domain.PromotionRule, ectx EvalContext) bool {
	switch rule.Attribute {
	case domain.RuleAttributeCartTotal:
		return compare(ectx.CartTotal, rule.Operator, rule.Value)
	case domain.RuleAttributeProductID:
		if !isSetOperator(rule.Operator) {
			return false
		}
		return anyLineMatches(ectx.Lines, rule.Values, func(l domain.CartLine) string { return l.ItemID })
	case domain.RuleAttributeCategoryID:
		if !isSetOperator(rule.Operator) {
			return false
		}
		return anyLineMatches(ectx.Lines, rule.Values, func(l domain.CartLine) string { return l.CategoryID })
	default:
		return false
	}
}

func compare(actual float64, op domain.RuleOperator, operand float64) bool {
	switch op {
	case domain.RuleOperatorEq:
		return actual == operand
	case domain.RuleOperatorGt:
		return actual > operand
	case domain.RuleOperatorGte:
		return actual >= operand
	case domain.RuleOperatorLt:
		return actual < operand
	case domain.RuleOperatorLte:
		return actual <= operand
	default:
		return false
	}
}

// id rules only make sense as membership tests
func isSetOperator(op domain.RuleOperator) bool {
	return op == domain.RuleOperatorEq || op == domain.RuleOperatorIn
}

func anyLineMatches(lines []domain.CartLine, operands []string, key func(domain.CartLine) string) bool {
	if len(operands) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(operands))
	for _, v := range operands {
		set[v] = struct{}{}
	}
	for _, line := range lines {
		if _, ok := set[key(line)]; ok {
			return true
		}
	}
	return false
}
