package dynamicconfig

import (
	"time"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

type (
	// Collection wraps a dynamic config Client and provides typed access with
	// defaults and constraint precedence. Value lookup order: exact
	// (namespace, task queue) match, namespace match, unconstrained value,
	// compiled-in default.
	Collection struct {
		client Client
		logger log.Logger
	}

	// IntPropertyFn returns an int property value.
	IntPropertyFn func() int
	// IntPropertyFnWithNamespaceFilter returns an int property value scoped by namespace.
	IntPropertyFnWithNamespaceFilter func(namespace string) int
	// IntPropertyFnWithTaskQueueFilter returns an int property value scoped by task queue.
	IntPropertyFnWithTaskQueueFilter func(namespace string, taskQueue string) int
	// FloatPropertyFn returns a float property value.
	FloatPropertyFn func() float64
	// DurationPropertyFn returns a duration property value.
	DurationPropertyFn func() time.Duration
	// DurationPropertyFnWithNamespaceFilter returns a duration property value scoped by namespace.
	DurationPropertyFnWithNamespaceFilter func(namespace string) time.Duration
	// DurationPropertyFnWithTaskQueueFilter returns a duration property value scoped by task queue.
	DurationPropertyFnWithTaskQueueFilter func(namespace string, taskQueue string) time.Duration
	// BoolPropertyFn returns a bool property value.
	BoolPropertyFn func() bool
	// MapPropertyFn returns a map property value.
	MapPropertyFn func() map[string]interface{}
)

// NewCollection creates a new collection.
func NewCollection(client Client, logger log.Logger) *Collection {
	return &Collection{
		client: client,
		logger: logger,
	}
}

// NewNoopCollection creates a new noop collection; every property returns its default.
func NewNoopCollection() *Collection {
	return NewCollection(NewNoopClient(), log.NewNoopLogger())
}

// GetIntProperty gets an int property with a default value.
func (c *Collection) GetIntProperty(key Key, defaultValue int) IntPropertyFn {
	return func() int {
		return c.resolveInt(key, Constraints{}, defaultValue)
	}
}

// GetIntPropertyFilteredByNamespace gets an int property scoped by namespace.
func (c *Collection) GetIntPropertyFilteredByNamespace(key Key, defaultValue int) IntPropertyFnWithNamespaceFilter {
	return func(namespace string) int {
		return c.resolveInt(key, Constraints{Namespace: namespace}, defaultValue)
	}
}

// GetIntPropertyFilteredByTaskQueue gets an int property scoped by task queue.
func (c *Collection) GetIntPropertyFilteredByTaskQueue(key Key, defaultValue int) IntPropertyFnWithTaskQueueFilter {
	return func(namespace string, taskQueue string) int {
		return c.resolveInt(key, Constraints{Namespace: namespace, TaskQueueName: taskQueue}, defaultValue)
	}
}

// GetFloat64Property gets a float64 property with a default value.
func (c *Collection) GetFloat64Property(key Key, defaultValue float64) FloatPropertyFn {
	return func() float64 {
		raw, ok := c.match(key, Constraints{})
		if !ok {
			return defaultValue
		}
		v, err := convertFloat(raw)
		if err != nil {
			c.logConversionError(key, raw, defaultValue, err)
			return defaultValue
		}
		return v
	}
}

// GetDurationProperty gets a duration property with a default value.
func (c *Collection) GetDurationProperty(key Key, defaultValue time.Duration) DurationPropertyFn {
	return func() time.Duration {
		return c.resolveDuration(key, Constraints{}, defaultValue)
	}
}

// GetDurationPropertyFilteredByNamespace gets a duration property scoped by namespace.
func (c *Collection) GetDurationPropertyFilteredByNamespace(key Key, defaultValue time.Duration) DurationPropertyFnWithNamespaceFilter {
	return func(namespace string) time.Duration {
		return c.resolveDuration(key, Constraints{Namespace: namespace}, defaultValue)
	}
}

// GetDurationPropertyFilteredByTaskQueue gets a duration property scoped by task queue.
func (c *Collection) GetDurationPropertyFilteredByTaskQueue(key Key, defaultValue time.Duration) DurationPropertyFnWithTaskQueueFilter {
	return func(namespace string, taskQueue string) time.Duration {
		return c.resolveDuration(key, Constraints{Namespace: namespace, TaskQueueName: taskQueue}, defaultValue)
	}
}

// GetBoolProperty gets a bool property with a default value.
func (c *Collection) GetBoolProperty(key Key, defaultValue bool) BoolPropertyFn {
	return func() bool {
		raw, ok := c.match(key, Constraints{})
		if !ok {
			return defaultValue
		}
		v, err := convertBool(raw)
		if err != nil {
			c.logConversionError(key, raw, defaultValue, err)
			return defaultValue
		}
		return v
	}
}

// GetMapProperty gets a map property with a default value.
func (c *Collection) GetMapProperty(key Key, defaultValue map[string]interface{}) MapPropertyFn {
	return func() map[string]interface{} {
		raw, ok := c.match(key, Constraints{})
		if !ok {
			return defaultValue
		}
		v, err := convertMap(raw)
		if err != nil {
			c.logConversionError(key, raw, defaultValue, err)
			return defaultValue
		}
		return v
	}
}

func (c *Collection) resolveInt(key Key, cons Constraints, defaultValue int) int {
	raw, ok := c.match(key, cons)
	if !ok {
		return defaultValue
	}
	v, err := convertInt(raw)
	if err != nil {
		c.logConversionError(key, raw, defaultValue, err)
		return defaultValue
	}
	return v
}

func (c *Collection) resolveDuration(key Key, cons Constraints, defaultValue time.Duration) time.Duration {
	raw, ok := c.match(key, cons)
	if !ok {
		return defaultValue
	}
	v, err := convertDuration(raw)
	if err != nil {
		c.logConversionError(key, raw, defaultValue, err)
		return defaultValue
	}
	return v
}

// match finds the most specific constrained value for the given constraints.
func (c *Collection) match(key Key, cons Constraints) (interface{}, bool) {
	values := c.client.GetValue(key)
	if len(values) == 0 {
		return nil, false
	}

	var namespaceMatch, globalMatch *ConstrainedValue
	for i := range values {
		cv := &values[i]
		switch {
		case cv.Constraints.Namespace == cons.Namespace &&
			cv.Constraints.TaskQueueName == cons.TaskQueueName &&
			(cons.Namespace != "" || cons.TaskQueueName != ""):
			return cv.Value, true
		case cv.Constraints.Namespace == cons.Namespace &&
			cv.Constraints.Namespace != "" &&
			cv.Constraints.TaskQueueName == "":
			namespaceMatch = cv
		case cv.Constraints == Constraints{}:
			globalMatch = cv
		}
	}
	if namespaceMatch != nil {
		return namespaceMatch.Value, true
	}
	if globalMatch != nil {
		return globalMatch.Value, true
	}
	return nil, false
}

func (c *Collection) logConversionError(key Key, raw interface{}, defaultValue interface{}, err error) {
	c.logger.Warn("Failed to convert dynamic config value, using default",
		tag.Key(key.String()),
		tag.Value(raw),
		tag.DefaultValue(defaultValue),
		tag.Error(err),
	)
}
