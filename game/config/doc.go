// Package config provides level pack management for Command Quest.
//
// The config package handles:
//   - Loading level packs from JSON files
//   - Pack validation and lint warnings
//   - Default pack management
//   - Pack discovery and listing
//
// Pack Format:
//
// Level packs are stored as JSON files in the levels directory. Each pack
// defines an ordered list of levels, the retry score policy and optional
// player-facing messages:
//
//	{
//	  "name": "tutorial",
//	  "score_reset_on_retry": false,
//	  "levels": [{
//	    "id": 1,
//	    "name": "Tutorial 1: Move Forward",
//	    "start_direction": "east",
//	    "layout": ["S.TE", "....", "....", "...."],
//	    "available_commands": ["advance"]
//	  }]
//	}
//
// Layout characters: S start, E end, T treasure, # wall, M enemy, X trap,
// '.' empty. Row 0 of the layout is y = 0.
//
// Built-in Pack:
//
// The tutorial pack is compiled in and used as the default unless a
// tutorial.json file in the levels directory replaces it.
//
// Usage:
//
//	manager, err := config.NewManager("levels", logger)
//	if err != nil {
//		return err
//	}
//
//	pack, err := manager.LoadPack("classic")
//	packs, err := manager.ListPacks()
package config
