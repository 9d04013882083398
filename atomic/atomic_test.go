/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package atomic_test

import (
	"sync"

	. "github.com/sentovic/jack1/atomic"

	. "github.com/onsi/ginkgo/v2"

	. "github.com/onsi/gomega"
)

var _ = Describe("atomic", func() {
	Describe("Value[T]", func() {
		Describe("NewValue", func() {
			It("should create a new atomic value", func() {
				v := NewValue[int]()
				Expect(v).ToNot(BeNil())
			})

			It("should create with default values", func() {
				v := NewValueDefault[string]("defaultLoad", "defaultStore")
				Expect(v).ToNot(BeNil())
			})
		})

		Describe("Store and Load", func() {
			It("should store and load int values", func() {
				v := NewValue[int]()
				v.Store(42)
				Expect(v.Load()).To(Equal(42))
			})

			It("should store and load string values", func() {
				v := NewValue[string]()
				v.Store("hello")
				Expect(v.Load()).To(Equal("hello"))
			})

			It("should store and load struct values", func() {
				type TestStruct struct {
					Name string
					Age  int
				}
				v := NewValue[TestStruct]()
				ts := TestStruct{Name: "Alice", Age: 30}
				v.Store(ts)
				Expect(v.Load()).To(Equal(ts))
			})

			It("should store and load pointer values", func() {
				v := NewValue[*int]()
				num := 123
				v.Store(&num)
				loaded := v.Load()
				Expect(*loaded).To(Equal(123))
			})
		})

		Describe("Swap", func() {
			It("should swap and return old value", func() {
				v := NewValue[int]()
				v.Store(10)
				old := v.Swap(20)
				Expect(old).To(Equal(10))
				Expect(v.Load()).To(Equal(20))
			})

			It("should swap strings", func() {
				v := NewValue[string]()
				v.Store("first")
				old := v.Swap("second")
				Expect(old).To(Equal("first"))
				Expect(v.Load()).To(Equal("second"))
			})
		})

		Describe("CompareAndSwap", func() {
			It("should swap when old value matches", func() {
				v := NewValue[int]()
				v.Store(100)
				swapped := v.CompareAndSwap(100, 200)
				Expect(swapped).To(BeTrue())
				Expect(v.Load()).To(Equal(200))
			})

			It("should not swap when old value doesn't match", func() {
				v := NewValue[int]()
				v.Store(100)
				swapped := v.CompareAndSwap(99, 200)
				Expect(swapped).To(BeFalse())
				Expect(v.Load()).To(Equal(100))
			})

			It("should work with strings", func() {
				v := NewValue[string]()
				v.Store("current")
				swapped := v.CompareAndSwap("current", "new")
				Expect(swapped).To(BeTrue())
				Expect(v.Load()).To(Equal("new"))
			})
		})

		Describe("SetDefaultLoad and SetDefaultStore", func() {
			It("should set default load value", func() {
				v := NewValue[int]()
				v.SetDefaultLoad(999)
				// Default is returned when nothing stored yet
				Expect(v).ToNot(BeNil())
			})

			It("should set default store value", func() {
				v := NewValue[string]()
				v.SetDefaultStore("default")
				Expect(v).ToNot(BeNil())
			})
		})

		Describe("Concurrency", func() {
			It("should be thread-safe for concurrent writes", func() {
				v := NewValue[int]()
				v.Store(0)

				var wg sync.WaitGroup
				for i := 0; i < 100; i++ {
					wg.Add(1)
					go func(val int) {
						defer wg.Done()
						v.Store(val)
					}(i)
				}
				wg.Wait()

				// Should not panic and have some value
				result := v.Load()
				Expect(result).To(BeNumerically(">=", 0))
				Expect(result).To(BeNumerically("<", 100))
			})

			It("should be thread-safe for concurrent reads and writes", func() {
				v := NewValue[int]()
				v.Store(0)

				var wg sync.WaitGroup
				// Writers
				for i := 0; i < 50; i++ {
					wg.Add(1)
					go func(val int) {
						defer wg.Done()
						v.Store(val)
					}(i)
				}
				// Readers
				for i := 0; i < 50; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_ = v.Load()
					}()
				}
				wg.Wait()
			})
		})
	})
})
