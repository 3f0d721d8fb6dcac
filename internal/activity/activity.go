package activity

import (
	"fmt"
	"strings"
)

// Activity is one of the six workout classes the classifier recognises.
// Its integer value is the training label.
type Activity int

const (
	WeightLift Activity = iota
	Walking
	Plank
	JumpingJacks
	Squats
	JumpRope
)

// Count is the number of activity classes.
const Count = 6

var names = [Count]string{
	WeightLift:   "WeightLift",
	Walking:      "Walking",
	Plank:        "Plank",
	JumpingJacks: "JumpingJacks",
	Squats:       "Squats",
	JumpRope:     "JumpRope",
}

// All returns every activity in label order.
func All() []Activity {
	return []Activity{WeightLift, Walking, Plank, JumpingJacks, Squats, JumpRope}
}

// Valid reports whether a is one of the enumerated activities.
func (a Activity) Valid() bool { return a >= 0 && int(a) < Count }

func (a Activity) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Activity(%d)", int(a))
	}
	return names[a]
}

// Label returns the class index used as the training target.
func (a Activity) Label() int { return int(a) }

// Prefix is the session directory prefix, e.g. "Walking_".
func (a Activity) Prefix() string { return a.String() + "_" }

// FromLabel maps a class index back to its activity.
func FromLabel(label int) (Activity, error) {
	a := Activity(label)
	if !a.Valid() {
		return 0, fmt.Errorf("unknown activity label %d", label)
	}
	return a, nil
}

// Parse accepts an activity name, case-insensitively.
func Parse(s string) (Activity, error) {
	for _, a := range All() {
		if strings.EqualFold(a.String(), s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown activity %q", s)
}

// FromDir returns the activity whose prefix starts the directory name.
func FromDir(name string) (Activity, bool) {
	for _, a := range All() {
		if strings.HasPrefix(name, a.Prefix()) {
			return a, true
		}
	}
	return 0, false
}

// Names returns display names in label order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}
