/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"reflect"
	"sort"
	"sync"

	"github.com/tomoncle/tabula/model"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is a model queued for table bootstrap. Lower priorities are
// created first and dropped last.
type SQLModel interface {
	Descriptor() *model.Descriptor
	Priority() int
}

// ModelRegistry stores models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(instance any, priority int) error
	Models() []SQLModel
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func NewModelRegistry() ModelRegistry {
	return &modelRegistry{models: make([]SQLModel, 0)}
}

// Register describes instance, a struct or struct pointer, and queues it.
// Registering the same type twice keeps the first entry.
func (r *modelRegistry) Register(instance any, priority int) error {
	d, err := model.DescribeType(reflect.TypeOf(instance))
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, m := range r.models {
		if m.Descriptor() == d {
			return nil
		}
	}
	r.models = append(r.models, &registeredModel{descriptor: d, priority: priority})
	return nil
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type registeredModel struct {
	descriptor *model.Descriptor
	priority   int
}

func (m *registeredModel) Descriptor() *model.Descriptor { return m.descriptor }
func (m *registeredModel) Priority() int                 { return m.priority }

// RegisterModel adds a model to the default registry.
func RegisterModel(instance any, priority int) error {
	return defaultRegistry.Register(instance, priority)
}

// RegisteredModels returns the default registry sorted by ascending priority.
func RegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}
