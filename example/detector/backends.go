package main

import (
	// register the classifier backends available on every platform
	_ "github.com/swdee/go-alpr/classifier/opencv"
	_ "github.com/swdee/go-alpr/classifier/tflite"
)
