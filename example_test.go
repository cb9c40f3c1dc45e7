package tether_test

import (
	"errors"
	"fmt"

	"github.com/feather-lang/tether"
	"github.com/feather-lang/tether/host"
	"github.com/feather-lang/tether/vm"
)

// Account is a bound Go type. Balance is exposed as an attribute.
type Account struct {
	Owner   string
	Balance int
}

var errOverdrawn = errors.New("insufficient funds")

func (a *Account) Withdraw(n int) (int, error) {
	if n > a.Balance {
		return a.Balance, errOverdrawn
	}
	a.Balance -= n
	return a.Balance, nil
}

// Suit is bound as an enum.
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

func Example() {
	rt := vm.New()
	defer rt.Close()
	b := tether.New(rt)
	defer b.Close()

	account, _ := tether.DefineClass[Account](b, "Account")
	account.DefineConstructor(func(owner string, balance int) *Account {
		return &Account{Owner: owner, Balance: balance}
	}, tether.Arg("owner"), tether.Arg("balance").Default(0))
	account.DefineMethod("withdraw", (*Account).Withdraw)
	account.DefineAttr("balance", "Balance", tether.Reader)

	acct, _ := b.Call(account.Klass(), "new", "ada", 100)
	left, _ := b.Call(acct, "withdraw", 30)
	fmt.Println(rt.Inspect(left))

	_, err := b.Call(acct, "withdraw", 500)
	exc, _ := host.AsException(err)
	fmt.Println(exc.ClassName+":", exc.Message)
	// Output:
	// 70
	// RuntimeError: insufficient funds
}

func ExampleDefineEnum() {
	rt := vm.New()
	defer rt.Close()
	b := tether.New(rt)
	defer b.Close()

	suit, _ := tether.DefineEnum[Suit](b, "Suit")
	suit.DefineValue("CLUBS", Clubs)
	suit.DefineValue("DIAMONDS", Diamonds)
	suit.DefineValue("HEARTS", Hearts)
	suit.DefineValue("SPADES", Spades)

	all, _ := b.Call(suit.Klass(), "values")
	fmt.Println(rt.Inspect(all))

	hearts, _ := b.Call(suit.Klass(), "from_int", 2)
	higher, _ := b.Call(hearts, ">", Diamonds)
	fmt.Println(rt.ToS(hearts), rt.Truthy(higher))
	// Output:
	// [#<Suit::CLUBS>, #<Suit::DIAMONDS>, #<Suit::HEARTS>, #<Suit::SPADES>]
	// HEARTS true
}

func ExampleHandle() {
	rt := vm.New()
	defer rt.Close()
	b := tether.New(rt)
	defer b.Close()

	bank, _ := b.DefineModule("Bank")
	tether.Handle(bank, func(rt host.Runtime, err error) error {
		if errors.Is(err, errOverdrawn) {
			return rt.Raise(rt.ErrorClass(host.RangeError), "%s", err.Error())
		}
		return err
	})
	bank.DefineFunction("check", func(n int) error {
		if n < 0 {
			return errOverdrawn
		}
		return nil
	})

	_, err := b.Call(bank.Value(), "check", -1)
	exc, _ := host.AsException(err)
	fmt.Println(exc.ClassName)
	// Output:
	// RangeError
}
