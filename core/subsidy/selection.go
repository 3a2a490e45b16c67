package subsidy

import (
	"subsidy-recon/core/policy"
	"subsidy-recon/core/tables"
)

// SelectInsurance picks at most one product for device.
//
// Flip/fold devices at a carrier that prefers flip/fold coverage get the
// first flip/fold product whose price band covers the device, else the first
// flip/fold product. Everything else gets the first product from the
// non-flip/fold subset (or the whole catalog when that subset is empty)
// whose band covers the factory price.
func SelectInsurance(s *policy.Settings, device tables.Device) *policy.Insurance {
	if s == nil || len(s.Insurance) == 0 {
		return nil
	}

	var flipFold, regular []int
	for i, ins := range s.Insurance {
		if ins.FlipFold || s.IsFlipFold(ins.Name) {
			flipFold = append(flipFold, i)
		} else {
			regular = append(regular, i)
		}
	}

	if s.PreferFlipFoldInsurance && len(flipFold) > 0 && s.IsFlipFold(device.Name()) {
		for _, i := range flipFold {
			if s.Insurance[i].Covers(device.FactoryPrice) {
				return &s.Insurance[i]
			}
		}
		return &s.Insurance[flipFold[0]]
	}

	candidates := regular
	if len(candidates) == 0 {
		candidates = flipFold
	}
	for _, i := range candidates {
		if s.Insurance[i].Covers(device.FactoryPrice) {
			return &s.Insurance[i]
		}
	}
	return nil
}

// SelectPlanGroup picks the budget group for budget devices that are not also
// premium, when a budget group is configured; otherwise the default group.
func SelectPlanGroup(device tables.Device, groups PlanGroups) string {
	if groups.Budget != "" && device.HasTag(tables.TagBudget) && !device.HasTag(tables.TagPremium) {
		return groups.Budget
	}
	return groups.Default
}
