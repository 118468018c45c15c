package rules

import (
	"sort"
	"strconv"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// fieldValue is a comparable snapshot field: exactly one representation is
// populated depending on the field's type.
type fieldValue struct {
	str     string
	num     float64
	numeric bool
}

var priorityRank = map[domain.TicketPriority]float64{
	domain.TicketPriorityLow:    1,
	domain.TicketPriorityMedium: 2,
	domain.TicketPriorityHigh:   3,
	domain.TicketPriorityUrgent: 4,
}

// Evaluate matches the firing trigger against the rule set and returns the
// matching rules' actions concatenated in priority order (higher priority
// first, ties broken by rule id). It is stateless: the same inputs always
// produce the same action list. The caller invokes it exactly once per
// distinct (ticket, event) pair.
func Evaluate(trigger domain.RuleTrigger, snapshot *domain.TicketSLA, now time.Time, ruleSet []domain.AutomationRule) []domain.ActionSpec {
	matched := make([]domain.AutomationRule, 0, len(ruleSet))
	for _, rule := range ruleSet {
		if !rule.Active || rule.Trigger != trigger {
			continue
		}
		if conditionsHold(rule.Conditions, snapshot, now) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	var actions []domain.ActionSpec
	for _, rule := range matched {
		actions = append(actions, rule.Actions...)
	}
	return actions
}

// conditionsHold evaluates the conjunctive predicate list. An unknown field
// or malformed comparison fails the rule rather than matching permissively.
func conditionsHold(conditions []domain.RuleCondition, snapshot *domain.TicketSLA, now time.Time) bool {
	for _, cond := range conditions {
		value, ok := resolveField(cond.Field, snapshot, now)
		if !ok {
			return false
		}
		if !compare(value, cond) {
			return false
		}
	}
	return true
}

func resolveField(field string, snapshot *domain.TicketSLA, now time.Time) (fieldValue, bool) {
	switch field {
	case "tenant_id":
		return fieldValue{str: snapshot.TenantID}, true
	case "category":
		return fieldValue{str: snapshot.Category}, true
	case "priority":
		rank, ok := priorityRank[snapshot.Priority]
		if !ok {
			return fieldValue{}, false
		}
		return fieldValue{str: string(snapshot.Priority), num: rank, numeric: true}, true
	case "sla_status":
		return fieldValue{str: string(snapshot.SLAStatus)}, true
	case "escalation_level":
		return fieldValue{str: strconv.Itoa(snapshot.EscalationLevel), num: float64(snapshot.EscalationLevel), numeric: true}, true
	case "age":
		age := now.Sub(snapshot.CreatedAt)
		return fieldValue{str: age.String(), num: float64(age), numeric: true}, true
	default:
		return fieldValue{}, false
	}
}

func compare(value fieldValue, cond domain.RuleCondition) bool {
	switch cond.Operator {
	case domain.OpEquals:
		return value.str == cond.Value
	case domain.OpNotEquals:
		return value.str != cond.Value
	case domain.OpInSet:
		for _, v := range cond.Values {
			if value.str == v {
				return true
			}
		}
		return false
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpAtLeast, domain.OpAtMost:
		if !value.numeric {
			return false
		}
		operand, ok := parseOperand(cond.Value)
		if !ok {
			return false
		}
		switch cond.Operator {
		case domain.OpGreaterThan:
			return value.num > operand
		case domain.OpLessThan:
			return value.num < operand
		case domain.OpAtLeast:
			return value.num >= operand
		default:
			return value.num <= operand
		}
	default:
		return false
	}
}

// parseOperand accepts plain numbers, priority names, or Go duration strings
// ("30m") so duration fields compare naturally.
func parseOperand(raw string) (float64, bool) {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, true
	}
	if rank, ok := priorityRank[domain.TicketPriority(raw)]; ok {
		return rank, true
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return float64(d), true
	}
	return 0, false
}
