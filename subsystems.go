package prealloc

import (
	"errors"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/subsystems"
)

// Names of the built-in subsystems, in warm-up order.
const (
	SubsystemStorage     = subsystems.StorageName
	SubsystemSettings    = subsystems.SettingsName
	SubsystemCookies     = subsystems.CookiesName
	SubsystemPreferences = subsystems.PreferencesName
)

// BuiltinSubsystems is the SubsystemFactory for the four subsystems backed
// by the shared profile: key/value storage, settings, cookies and
// preferences. The returned cleanup closes the storage database.
func BuiltinSubsystems(req WorkerRequest) ([]Descriptor, func() error, error) {
	if req.ProfileDir == "" {
		return nil, nil, errors.New("profile directory must not be empty")
	}
	set := subsystems.NewSet(profile.Paths{Dir: req.ProfileDir})
	return set.Descriptors(), set.Close, nil
}
