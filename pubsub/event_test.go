package pubsub

import (
	"fmt"
	"time"
)

func ExampleEvent_String() {
	ev := NewEvent("test", nil)
	loc, _ := time.LoadLocation("UTC")
	ev.Timestamp = time.Date(2016, 9, 2, 3, 4, 5, 987654321, loc)
	fmt.Println(ev.String())
	//Output: {"timestamp":"2016-09-02 03:04:05.987","topic":"test"}
}

func ExampleParse_withTimestamp() {
	ev := Parse(`{"timestamp":"2016-09-02 03:04:05.987","topic":"test","field":"value"}`, "")
	fmt.Println(ev.Topic)
	fmt.Println(ev.Timestamp)
	fmt.Println(ev.Fields)
	// Output:
	// test
	// 2016-09-02 03:04:05.987 +0000 UTC
	// map[field:value]
}

func ExampleParse_topicOverride() {
	ev := Parse(`{"topic":"ignored","field":"value"}`, "velux")
	fmt.Println(ev.Topic)
	// Output:
	// velux
}

func ExampleParse_withoutTimestamp() {
	ev := Parse(`{"topic":"test","field":"value"}`, "")
	fmt.Println(ev.Topic)
	fmt.Println(ev.Fields)
	// Output:
	// test
	// map[field:value]
}

func ExampleParse_bad() {
	ev := Parse(`{`, "")
	fmt.Println(ev)
	// Output:
	// <nil>
}

func Example_matchers() {
	fmt.Println(Exact("touch").Match("touch"))
	fmt.Println(Prefix("command").Match("command/light.lounge"))
	fmt.Println(Prefix("command").Match("commander"))
	fmt.Println(All().Match("anything"))
	// Output:
	// true
	// true
	// false
	// true
}
