// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type validationTestSuite struct {
	suite.Suite
}

func TestValidation(t *testing.T) {
	suite.Run(t, new(validationTestSuite))
}

func (s *validationTestSuite) TestNewChain() {
	s.Run("new chain without option", func() {
		chain := New()
		s.Assert().NotNil(chain)
		s.Assert().False(chain.failFast)
	})
	s.Run("new chain with options", func() {
		s.Assert().True(New(FailFast()).failFast)
		s.Assert().False(New(AllErrors()).failFast)
	})
}

func (s *validationTestSuite) TestValidate() {
	s.Run("with all validators passing", func() {
		err := New().
			AddValidator(NewEmptyStringValidator("id", "db1")).
			AddValidator(NewPositiveDurationValidator("timeout", time.Second)).
			AddAssertion(true, "unused").
			Validate()
		s.Assert().NoError(err)
	})
	s.Run("with all errors collected", func() {
		err := New().
			AddValidator(NewEmptyStringValidator("id", " ")).
			AddValidator(NewPositiveDurationValidator("timeout", 0)).
			Validate()
		s.Require().Error(err)
		s.Assert().Contains(err.Error(), "the [id] is required")
		s.Assert().Contains(err.Error(), "the [timeout] must be greater than zero")
	})
	s.Run("with fail fast", func() {
		err := New(FailFast()).
			AddAssertion(false, "first").
			AddAssertion(false, "second").
			Validate()
		s.Require().Error(err)
		s.Assert().EqualError(err, "first")
	})
	s.Run("validating twice does not accumulate", func() {
		chain := New().AddAssertion(false, "broken")
		s.Assert().EqualError(chain.Validate(), "broken")
		s.Assert().EqualError(chain.Validate(), "broken")
	})
}

func (s *validationTestSuite) TestPatternValidator() {
	custom := errors.New("bad id")
	s.Assert().NoError(NewPatternValidator(`^[a-z]+$`, "orders", nil).Validate())
	s.Assert().EqualError(NewPatternValidator(`^[a-z]+$`, "Orders!", nil).Validate(), "invalid expression")
	s.Assert().ErrorIs(NewPatternValidator(`^[a-z]+$`, "1", custom).Validate(), custom)
}

func (s *validationTestSuite) TestTCPAddressValidator() {
	s.Assert().NoError(NewTCPAddressValidator("127.0.0.1:3322").Validate())
	s.Assert().Error(NewTCPAddressValidator("127.0.0.1").Validate())
	s.Assert().Error(NewTCPAddressValidator(":3322").Validate())
	s.Assert().Error(NewTCPAddressValidator("127.0.0.1:port").Validate())
	s.Assert().Error(NewTCPAddressValidator("127.0.0.1:70000").Validate())
}

func (s *validationTestSuite) TestAssertionValidator() {
	s.Assert().NoError(NewAssertionValidator(true, "unused").Validate())
	s.Assert().EqualError(NewAssertionValidator(false, "the pool size must be positive").Validate(), "the pool size must be positive")
	s.Assert().EqualError(New().AddAssertion(false, "broken").Validate(), "broken")
}
