package app

import (
	"github.com/vk/releasegrid/internal/registry"
	"github.com/vk/releasegrid/modules/build"
	"github.com/vk/releasegrid/modules/formula"
	"github.com/vk/releasegrid/modules/gate"
	"github.com/vk/releasegrid/modules/globalbuild"
	"github.com/vk/releasegrid/modules/plan"
	"github.com/vk/releasegrid/modules/release"
)

// coreModules is the definitive list of all stage modules that are compiled
// into the releasegrid binary.
var coreModules = []registry.Module{
	&plan.Module{},
	&build.Module{},
	&globalbuild.Module{},
	&gate.Module{},
	&release.Module{},
	&formula.Module{},
}
