///-- GO HELLO *******************
import "fmt"
greeting := "hi"
fmt.Println(greeting) //=> hi
