/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Item is one selectable entry in a draft pool. Items are identified by
// name; role and image are carried through to clients untouched.
type Item struct {
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// PoolProvider supplies the full item pool for a new or reset session.
// Every call must return a fresh slice the caller may mutate.
type PoolProvider interface {
	Pool() []Item
}

// StaticPool serves the same list of items to every session.
type StaticPool []Item

func (p StaticPool) Pool() []Item {
	return slices.Clone(p)
}

type poolFile struct {
	Items []Item `yaml:"items"`
}

// loadPool reads a YAML pool definition. Both a bare list of items and a
// document with a top-level "items" key are accepted.
func loadPool(path string) (StaticPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool file: %w", err)
	}

	var items []Item

	var doc poolFile
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Items) > 0 {
		items = doc.Items
	} else if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse pool file: %w", err)
	}

	return newStaticPool(items)
}

func newStaticPool(items []Item) (StaticPool, error) {
	if len(items) == 0 {
		return nil, errors.New("item pool is empty")
	}

	seen := make(map[string]bool, len(items))
	pool := make(StaticPool, 0, len(items))

	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return nil, errors.New("item pool contains an item without a name")
		}
		if seen[item.Name] {
			return nil, fmt.Errorf("item pool contains %q more than once", item.Name)
		}
		seen[item.Name] = true
		pool = append(pool, item)
	}

	return pool, nil
}

func newPoolProvider(cfg *Config) (PoolProvider, error) {
	if cfg.poolFile == "" {
		return defaultPool(), nil
	}

	return loadPool(cfg.poolFile)
}

func defaultPool() StaticPool {
	return StaticPool{
		{Name: "Virat Kohli", Role: "Batsman"},
		{Name: "Rohit Sharma", Role: "Batsman"},
		{Name: "MS Dhoni", Role: "Wicket-keeper"},
		{Name: "Jasprit Bumrah", Role: "Bowler"},
		{Name: "Ravindra Jadeja", Role: "All-rounder"},
		{Name: "Shubman Gill", Role: "Batsman"},
		{Name: "KL Rahul", Role: "Wicket-keeper"},
		{Name: "Hardik Pandya", Role: "All-rounder"},
		{Name: "Ravichandran Ashwin", Role: "Bowler"},
		{Name: "Suryakumar Yadav", Role: "Batsman"},
		{Name: "Mohammed Shami", Role: "Bowler"},
		{Name: "Shreyas Iyer", Role: "Batsman"},
		{Name: "Rishabh Pant", Role: "Wicket-keeper"},
		{Name: "Yuzvendra Chahal", Role: "Bowler"},
		{Name: "Bhuvneshwar Kumar", Role: "Bowler"},
		{Name: "Axar Patel", Role: "All-rounder"},
		{Name: "Ishan Kishan", Role: "Wicket-keeper"},
		{Name: "Washington Sundar", Role: "All-rounder"},
		{Name: "Kuldeep Yadav", Role: "Bowler"},
		{Name: "Deepak Chahar", Role: "Bowler"},
		{Name: "Prithvi Shaw", Role: "Batsman"},
		{Name: "Sanju Samson", Role: "Wicket-keeper"},
		{Name: "Umran Malik", Role: "Bowler"},
		{Name: "Arshdeep Singh", Role: "Bowler"},
		{Name: "Tilak Varma", Role: "Batsman"},
		{Name: "Mohammed Siraj", Role: "Bowler"},
		{Name: "Shardul Thakur", Role: "All-rounder"},
		{Name: "Dinesh Karthik", Role: "Wicket-keeper"},
		{Name: "Deepak Hooda", Role: "All-rounder"},
		{Name: "Ruturaj Gaikwad", Role: "Batsman"},
	}
}
