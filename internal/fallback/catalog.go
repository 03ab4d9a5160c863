// Package fallback generates synthetic scenes for parcels without authored
// content: wilderness filler and road pieces.
package fallback

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog lists the sprites the generators may place. Obstacle kinds are
// sprite stacks drawn at the same spot (e.g. trunk + crown + shadow).
type Catalog struct {
	Backgrounds    []string
	Decorations    [][]string
	SmallObstacles [][]string
	BigObstacles   [][]string

	// Boulevards enables benches and lamps at road crossings.
	Boulevards bool
}

// Asset directories relative to the catalog root.
const (
	backgroundDir  = "background"
	decorationDir  = "randomized/no_collision"
	smallObstacles = "randomized/small_collision"
	bigObstacles   = "randomized/big_collision"
)

// DefaultCatalog is used when no asset directory is available.
func DefaultCatalog() Catalog {
	return Catalog{
		Backgrounds: []string{
			"background/grass-1.png",
			"background/grass-2.png",
			"background/grass-3.png",
			"background/grass-4.png",
		},
		Decorations: [][]string{
			{"randomized/no_collision/flowers/flowers.png"},
			{"randomized/no_collision/mushrooms/mushrooms.png"},
			{"randomized/no_collision/stones/stones.png"},
		},
		SmallObstacles: [][]string{
			{"randomized/small_collision/bush/bush.png", "randomized/small_collision/bush/shadow.png"},
			{"randomized/small_collision/rock/rock.png"},
		},
		BigObstacles: [][]string{
			{"randomized/big_collision/tree/tree.png", "randomized/big_collision/tree/shadow.png"},
			{"randomized/big_collision/boulder/boulder.png"},
		},
		Boulevards: true,
	}
}

// LoadCatalog lists the sprites under root. Missing directories leave the
// matching default list in place.
func LoadCatalog(root string) (Catalog, error) {
	cat := DefaultCatalog()

	bgs, err := listFiles(root, backgroundDir)
	if err != nil {
		return cat, err
	}
	if len(bgs) > 0 {
		cat.Backgrounds = bgs
	}

	for _, k := range []struct {
		dir string
		dst *[][]string
	}{
		{decorationDir, &cat.Decorations},
		{smallObstacles, &cat.SmallObstacles},
		{bigObstacles, &cat.BigObstacles},
	} {
		kinds, err := listKinds(root, k.dir)
		if err != nil {
			return cat, err
		}
		if len(kinds) > 0 {
			*k.dst = kinds
		}
	}
	return cat, nil
}

func listFiles(root, rel string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", rel, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		out = append(out, path.Join(rel, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func listKinds(root, rel string) ([][]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", rel, err)
	}
	var out [][]string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sprites, err := listFiles(root, path.Join(rel, e.Name()))
		if err != nil {
			return nil, err
		}
		if len(sprites) > 0 {
			out = append(out, sprites)
		}
	}
	return out, nil
}
