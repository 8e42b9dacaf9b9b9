package escrow

// contractABI covers the calls this service makes against the escrow contract.
const contractABI = `[
  {"type":"error","name":"AlreadyDeposited","inputs":[]},
  {"type":"error","name":"InvalidAgents","inputs":[]},
  {"type":"error","name":"InvalidWager","inputs":[]},
  {"type":"error","name":"InvalidWinner","inputs":[]},
  {"type":"error","name":"MatchEnded","inputs":[]},
  {"type":"error","name":"MatchExists","inputs":[]},
  {"type":"error","name":"MatchNotFound","inputs":[]},
  {"type":"error","name":"NotAPlayer","inputs":[]},
  {"type":"error","name":"NotBothDeposited","inputs":[]},
  {"type":"error","name":"OnlyResolver","inputs":[]},
  {"type":"error","name":"TransferFailed","inputs":[]},
  {"type":"error","name":"WrongAmount","inputs":[]},
  {"type":"function","name":"createMatch","stateMutability":"nonpayable","outputs":[],
   "inputs":[
     {"name":"matchId","type":"bytes32","internalType":"bytes32"},
     {"name":"agent1","type":"address","internalType":"address"},
     {"name":"agent2","type":"address","internalType":"address"},
     {"name":"wagerAmount","type":"uint256","internalType":"uint256"}]},
  {"type":"function","name":"matches","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"bytes32","internalType":"bytes32"}],
   "outputs":[
     {"name":"agent1","type":"address","internalType":"address"},
     {"name":"agent2","type":"address","internalType":"address"},
     {"name":"wagerAmount","type":"uint256","internalType":"uint256"},
     {"name":"deposit1","type":"bool","internalType":"bool"},
     {"name":"deposit2","type":"bool","internalType":"bool"},
     {"name":"resolved","type":"bool","internalType":"bool"},
     {"name":"cancelled","type":"bool","internalType":"bool"}]},
  {"type":"function","name":"resolve","stateMutability":"nonpayable","outputs":[],
   "inputs":[
     {"name":"matchId","type":"bytes32","internalType":"bytes32"},
     {"name":"winner","type":"address","internalType":"address"}]},
  {"type":"function","name":"cancelAndRefund","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"matchId","type":"bytes32","internalType":"bytes32"}]}
]`
