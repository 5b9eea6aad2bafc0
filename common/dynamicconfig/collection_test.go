package dynamicconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/common/log"
)

const (
	testIntKey      = Key("test.intKey")
	testDurationKey = Key("test.durationKey")
	testBoolKey     = Key("test.boolKey")
	testMapKey      = Key("test.mapKey")
)

type listClient map[Key][]ConstrainedValue

func (c listClient) GetValue(key Key) []ConstrainedValue {
	return c[key]
}

func TestCollectionDefaults(t *testing.T) {
	col := NewCollection(NewNoopClient(), log.NewTestLogger())

	require.Equal(t, 42, col.GetIntProperty(testIntKey, 42)())
	require.Equal(t, time.Minute, col.GetDurationProperty(testDurationKey, time.Minute)())
	require.True(t, col.GetBoolProperty(testBoolKey, true)())
}

func TestCollectionTypedValues(t *testing.T) {
	client := StaticClient{
		testIntKey:      1000,
		testDurationKey: "90s",
		testBoolKey:     false,
		testMapKey:      map[string]interface{}{"MaximumAttempts": 5},
	}
	col := NewCollection(client, log.NewTestLogger())

	require.Equal(t, 1000, col.GetIntProperty(testIntKey, 42)())
	require.Equal(t, 90*time.Second, col.GetDurationProperty(testDurationKey, time.Minute)())
	require.False(t, col.GetBoolProperty(testBoolKey, true)())
	require.Equal(t, 5, col.GetMapProperty(testMapKey, nil)()["MaximumAttempts"])
}

func TestCollectionConversionFallback(t *testing.T) {
	client := StaticClient{
		testIntKey: "not-an-int",
	}
	col := NewCollection(client, log.NewTestLogger())

	require.Equal(t, 42, col.GetIntProperty(testIntKey, 42)())
}

func TestCollectionConstraintPrecedence(t *testing.T) {
	client := listClient{
		testIntKey: {
			{Constraints: Constraints{Namespace: "accounting", TaskQueueName: "billing"}, Value: 10},
			{Constraints: Constraints{Namespace: "accounting"}, Value: 20},
			{Constraints: Constraints{}, Value: 30},
		},
	}
	col := NewCollection(client, log.NewTestLogger())

	byTaskQueue := col.GetIntPropertyFilteredByTaskQueue(testIntKey, 0)
	require.Equal(t, 10, byTaskQueue("accounting", "billing"))
	require.Equal(t, 20, byTaskQueue("accounting", "shipping"))
	require.Equal(t, 30, byTaskQueue("ops", "deploys"))

	byNamespace := col.GetIntPropertyFilteredByNamespace(testIntKey, 0)
	require.Equal(t, 20, byNamespace("accounting"))
	require.Equal(t, 30, byNamespace("ops"))

	require.Equal(t, 30, col.GetIntProperty(testIntKey, 0)())
}
