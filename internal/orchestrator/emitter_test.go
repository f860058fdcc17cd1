//go:build integration

package orchestrator

// emitter is a minimal contract with emitEvent(uint256 id, string data) and
// emitMultipleEvents(uint256 startId, uint256 count, string data), both emitting
// TestEvent(uint256 indexed id, address indexed sender, string data).
const (
	emitterABI = "[{\"constant\":false,\"inputs\":[{\"name\":\"id\",\"type\":\"uint256\"},{\"name\":\"data\",\"type\":\"string\"}],\"name\":\"emitEvent\",\"outputs\":[],\"payable\":false,\"stateMutability\":\"nonpayable\",\"type\":\"function\"},{\"constant\":false,\"inputs\":[{\"name\":\"startId\",\"type\":\"uint256\"},{\"name\":\"count\",\"type\":\"uint256\"},{\"name\":\"data\",\"type\":\"string\"}],\"name\":\"emitMultipleEvents\",\"outputs\":[],\"payable\":false,\"stateMutability\":\"nonpayable\",\"type\":\"function\"},{\"anonymous\":false,\"inputs\":[{\"indexed\":true,\"name\":\"id\",\"type\":\"uint256\"},{\"indexed\":true,\"name\":\"sender\",\"type\":\"address\"},{\"indexed\":false,\"name\":\"data\",\"type\":\"string\"}],\"name\":\"TestEvent\",\"type\":\"event\"}]"
	emitterBin = "0x608060405234801561001057600080fd5b5061038a806100206000396000f3fe608060405234801561001057600080fd5b50600436106100365760003560e01c806352925e461461003b5780635447e6a014610100575b600080fd5b6100fe6004803603604081101561005157600080fd5b81019080803590602001909291908035906020019064010000000081111561007857600080fd5b82018360208201111561008a57600080fd5b803590602001918460018302840111640100000000831117156100ac57600080fd5b91908080601f016020809104026020016040519081016040528093929190818152602001838380828437600081840152601f19601f8201169050808301925050505050505091929192905050506101cf565b005b6101cd6004803603606081101561011657600080fd5b8101908080359060200190929190803590602001909291908035906020019064010000000081111561014757600080fd5b82018360208201111561015957600080fd5b8035906020019184600183028401116401000000008311171561017b57600080fd5b91908080601f016020809104026020016040519081016040528093929190818152602001838380828437600081840152601f19601f820116905080830192505050505050509192919290505050610287565b005b3373ffffffffffffffffffffffffffffffffffffffff16827f09f09c482a293eae240f90f0a4c7ae23ba44da9a1c7965aa0a3e30472cbca237836040518080602001828103825283818151815260200191508051906020019080838360005b8381101561024957808201518184015260208101905061022e565b50505050905090810190601f1680156102765780820380516001836020036101000a031916815260200191505b509250505060405180910390a35050565b60008090505b82811015610358573373ffffffffffffffffffffffffffffffffffffffff168185017f09f09c482a293eae240f90f0a4c7ae23ba44da9a1c7965aa0a3e30472cbca237846040518080602001828103825283818151815260200191508051906020019080838360005b838110156103115780820151818401526020810190506102f6565b50505050905090810190601f16801561033e5780820380516001836020036101000a031916815260200191505b509250505060405180910390a3808060010191505061028d565b5050505056fea165627a7a723058203eeb6001009d4cc5b3da2241b5bf6732bc46719768401a85afc7772c2eeadb540029"
)
