package jobserver

import (
	"context"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jbohren-forks/catkin-tools/go/skerr"
)

// LoadAveragePredicate returns a Predicate that blocks admission once the
// 5-minute load average exceeds maxLoad, mirroring catkin_tools'
// `_load_ok`. It never blocks the very first job (a lone running job must
// always be allowed to finish even on an overloaded host).
func LoadAveragePredicate(js *JobServer, maxLoad float64) Predicate {
	return func() (bool, error) {
		running, err := js.RunningJobs()
		if err != nil {
			return false, skerr.Wrap(err)
		}
		if running == 0 {
			return true, nil
		}
		avg, err := load.AvgWithContext(context.Background())
		if err != nil {
			return false, skerr.Wrapf(err, "jobserver: failed to read load average")
		}
		return avg.Load5 <= maxLoad, nil
	}
}

// MemoryPercentPredicate returns a Predicate that blocks admission once
// used physical memory exceeds maxPercent of total, mirroring
// catkin_tools' `_mem_ok`.
func MemoryPercentPredicate(js *JobServer, maxPercent float64) Predicate {
	return func() (bool, error) {
		running, err := js.RunningJobs()
		if err != nil {
			return false, skerr.Wrap(err)
		}
		if running == 0 {
			return true, nil
		}
		vm, err := mem.VirtualMemoryWithContext(context.Background())
		if err != nil {
			return false, skerr.Wrapf(err, "jobserver: failed to read memory usage")
		}
		return vm.UsedPercent <= maxPercent, nil
	}
}
