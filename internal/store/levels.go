package store

const maxLevel = 999

// ExpForLevel is the total experience needed to reach level.
func ExpForLevel(level int) int64 {
	var total int64
	for l := 1; l < level && l < maxLevel; l++ {
		total += int64(l * l / 2)
	}
	return total
}

// LevelForExp is the highest level whose threshold exp has reached.
func LevelForExp(exp int64) int {
	level := 1
	var total int64
	for level <= maxLevel {
		total += int64(level * level / 2)
		if exp < total {
			break
		}
		level++
	}
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

type labelRange struct {
	name     string
	min, max int
}

var labels = []labelRange{
	{"普通用户", 1, 10},
	{"活跃用户", 11, 20},
	{"资深用户", 21, 30},
	{"传奇", 31, 35},
	{"神话", 36, 45},
	{"巅峰", 46, 99},
	{"无敌", 100, maxLevel},
}

const DefaultLabel = "普通用户"

func LabelForLevel(level int) string {
	for _, r := range labels {
		if level >= r.min && level <= r.max {
			return r.name
		}
	}
	return labels[len(labels)-1].name
}
