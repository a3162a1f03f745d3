package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIDGenerator(t *testing.T) {
	gen := NewSequenceIDGenerator()

	assert.Equal(t, "Company-1", gen.Generate("Company"))
	assert.Equal(t, "Company-2", gen.Generate("Company"))
	assert.Equal(t, "Employee-1", gen.Generate("Employee"))

	gen.Reset()
	assert.Equal(t, "Company-1", gen.Generate("Company"))
}

func TestSequenceIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceIDGenerator()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate("Company")
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}

func TestCompanySchema(t *testing.T) {
	reg := CompanySchema()

	company, err := reg.Entity("Company")
	require.NoError(t, err)
	assert.Equal(t, "company", company.MustProperty("employees").BackReference)

	employee, err := reg.Entity("Employee")
	require.NoError(t, err)
	assert.Equal(t, "employees", employee.MustProperty("company").BackReference)

	_, ok := reg.Lookup("Address")
	assert.True(t, ok)
}
