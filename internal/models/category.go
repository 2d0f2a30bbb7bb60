package models

import "strings"

// Category identifies the kind of trackable entity.
type Category string

const (
	CategoryStudent             Category = "STUDENT"
	CategoryBus                 Category = "BUS"
	CategoryRegisteredVisitor   Category = "REGISTERED_VISITOR"
	CategoryUnregisteredVisitor Category = "UNREGISTERED_VISITOR"
	CategoryGatePass            Category = "GATE_PASS"
	CategoryStaff               Category = "STAFF"
)

// Categories lists every supported category.
func Categories() []Category {
	return []Category{
		CategoryStudent,
		CategoryBus,
		CategoryRegisteredVisitor,
		CategoryUnregisteredVisitor,
		CategoryGatePass,
		CategoryStaff,
	}
}

// Valid returns true when the category is a supported value.
func (c Category) Valid() bool {
	return c.Module() != ""
}

// Module maps a category to its report module. Both storage paths go through
// this mapping so their counts land in the same buckets.
func (c Category) Module() Module {
	switch c {
	case CategoryRegisteredVisitor, CategoryUnregisteredVisitor:
		return ModuleVisitor
	case CategoryStaff:
		return ModuleStaff
	case CategoryStudent:
		return ModuleStudent
	case CategoryBus:
		return ModuleBus
	case CategoryGatePass:
		return ModuleGatePass
	default:
		return ""
	}
}

// Variant returns the lifecycle flavour used for this category.
func (c Category) Variant() VisitVariant {
	if c == CategoryGatePass {
		return VariantGatePass
	}
	return VariantStandard
}

// Module is the reporting and purpose-catalog partition.
type Module string

const (
	ModuleVisitor  Module = "visitor"
	ModuleStaff    Module = "staff"
	ModuleStudent  Module = "student"
	ModuleBus      Module = "bus"
	ModuleGatePass Module = "gatepass"
)

// Modules returns every module in report order.
func Modules() []Module {
	return []Module{ModuleVisitor, ModuleStaff, ModuleStudent, ModuleBus, ModuleGatePass}
}

// ID is the stable numeric category id used by the purpose catalog.
func (m Module) ID() int {
	switch m {
	case ModuleVisitor:
		return 1
	case ModuleStaff:
		return 2
	case ModuleStudent:
		return 3
	case ModuleBus:
		return 4
	case ModuleGatePass:
		return 5
	default:
		return 0
	}
}

// Categories returns the entity categories reported under m.
func (m Module) Categories() []Category {
	result := make([]Category, 0, 2)
	for _, c := range Categories() {
		if c.Module() == m {
			result = append(result, c)
		}
	}
	return result
}

// ModuleByID resolves a purpose catalog category id.
func ModuleByID(id int) (Module, bool) {
	for _, m := range Modules() {
		if m.ID() == id {
			return m, true
		}
	}
	return "", false
}

// ParseModule accepts a module name in any case.
func ParseModule(raw string) (Module, bool) {
	m := Module(strings.ToLower(strings.TrimSpace(raw)))
	if m.ID() == 0 {
		return "", false
	}
	return m, true
}
