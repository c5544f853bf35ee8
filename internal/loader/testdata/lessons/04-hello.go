///-- GO BASICS ****************
import "fmt"
x := 40
y := x + 2
fmt.Println(y) // 42
for i := 0; i < 2; i++ {
	fmt.Println(i)
}
x * 2 // 80
