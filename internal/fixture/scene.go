// Package fixture implements the pulse-programming protocol of the pool
// light: scene selection is encoded as a count of relay power cycles.
package fixture

import "errors"

// ErrInvalidScene is returned when a scene name is not in the fixture's table.
var ErrInvalidScene = errors.New("fixture: invalid scene name")

// Scene identifies one of the fixture's built-in scenes. The numeric value
// equals the number of power pulses the fixture's decoder expects for it.
type Scene uint8

const (
	SceneUnknown Scene = iota // not programmable; reported after a cold boot
	ScenePeruvianParadise
	SceneSuperNova
	SceneNorthernLights
	SceneTidalWave
	ScenePatriotBlue
	SceneDesertSkies
	SceneNova
	SceneBlue
	SceneGreen
	SceneRed
	SceneWhite
	ScenePink
	SceneColorLock
	SceneReturn
)

var sceneNames = map[Scene]string{
	ScenePeruvianParadise: "Peruvian_Paradise",
	SceneSuperNova:        "Super_Nova",
	SceneNorthernLights:   "Northern_Lights",
	SceneTidalWave:        "Tidal_Wave",
	ScenePatriotBlue:      "Patriot_Blue",
	SceneDesertSkies:      "Desert_Skies",
	SceneNova:             "Nova",
	SceneBlue:             "Blue",
	SceneGreen:            "Green",
	SceneRed:              "Red",
	SceneWhite:            "White",
	ScenePink:             "Pink",
	SceneColorLock:        "Color_Lock",
	SceneReturn:           "Return",
}

var scenesByName = func() map[string]Scene {
	m := make(map[string]Scene, len(sceneNames))
	for s, n := range sceneNames {
		m[n] = s
	}
	return m
}()

// SceneForName resolves a scene by its exact, case-sensitive name.
func SceneForName(name string) (Scene, error) {
	s, ok := scenesByName[name]
	if !ok {
		return SceneUnknown, ErrInvalidScene
	}
	return s, nil
}

// Name returns the table name of the scene, or "Unknown" for any value
// outside the programmable range.
func (s Scene) Name() string {
	if n, ok := sceneNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Pulses returns the pulse count the fixture expects for this scene.
func (s Scene) Pulses() int {
	return int(s)
}

// Valid reports whether the scene can be dispatched to the sequencer.
func (s Scene) Valid() bool {
	return s >= ScenePeruvianParadise && s <= SceneReturn
}

// SceneNames returns all programmable scene names in pulse-count order.
func SceneNames() []string {
	names := make([]string, 0, len(sceneNames))
	for s := ScenePeruvianParadise; s <= SceneReturn; s++ {
		names = append(names, sceneNames[s])
	}
	return names
}
